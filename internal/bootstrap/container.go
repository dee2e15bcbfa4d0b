package bootstrap

import (
	"context"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mnemosyne/internal/adapters/ai"
	chclient "mnemosyne/internal/adapters/clickhouse"
	"mnemosyne/internal/adapters/config"
	"mnemosyne/internal/adapters/embeddings"
	noopTracker "mnemosyne/internal/adapters/errors/noop"
	sentryTracker "mnemosyne/internal/adapters/errors/sentry"
	"mnemosyne/internal/adapters/kafka"
	pgclient "mnemosyne/internal/adapters/postgres"
	redisclient "mnemosyne/internal/adapters/redis"
	"mnemosyne/internal/api"
	"mnemosyne/internal/api/health"
	"mnemosyne/internal/api/telegram"
	"mnemosyne/internal/consumers"
	"mnemosyne/internal/domain/chatctx"
	"mnemosyne/internal/events"
	"mnemosyne/internal/metrics"
	chrepo "mnemosyne/internal/repository/clickhouse"
	pgrepo "mnemosyne/internal/repository/postgres"
	redisrepo "mnemosyne/internal/repository/redis"
	"mnemosyne/internal/services/query"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
	"mnemosyne/pkg/tokens"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (ClickHouse, Redis and Kafka are optional)
	PG            *pgclient.Client
	CH            *chclient.Client
	Redis         *redisclient.Client
	KafkaProducer *kafka.Producer

	// Domain Layer
	ContextRepo *pgrepo.ChatContextRepository
	Contexts    *chatctx.Service
	Embedder    embeddings.Provider

	// AI dispatch
	Registry *ai.Registry
	Queries  *query.Service

	// Usage pipeline
	Publisher     *events.Publisher
	UsageRepo     *chrepo.UsageRepository
	UsageConsumer *consumers.UsageConsumer

	// Application Layer
	HTTPServer    *api.Server
	HealthHandler *health.Handler
	TelegramBot   *telegram.Bot

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Lifecycle: NewLifecycle(),
		WG:        &sync.WaitGroup{},
		Context:   ctx,
		Cancel:    cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitDomain()
	c.MustInitAI()
	c.MustInitUsagePipeline()
	c.MustInitApplication()
}

// MustInitConfig loads configuration, logging, metrics and error tracking
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	metrics.Init()

	c.ErrorTracker = c.buildErrorTracker()
	logger.SetErrorTracker(c.ErrorTracker)
}

func (c *Container) buildErrorTracker() errors.Tracker {
	cfg := c.Config.ErrorTracking
	if !cfg.Enabled || cfg.SentryDSN == "" {
		c.Log.Info("Error tracking disabled")
		return noopTracker.New()
	}

	tracker, err := sentryTracker.New(cfg.SentryDSN, cfg.Environment)
	if err != nil {
		c.Log.Warnf("Failed to initialize Sentry: %v", err)
		return noopTracker.New()
	}
	c.Log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// MustInitInfrastructure connects the data stores. PostgreSQL is required;
// ClickHouse, Redis and Kafka are skipped when disabled by config.
func (c *Container) MustInitInfrastructure() {
	pg, err := pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		panic("failed to connect to PostgreSQL: " + err.Error())
	}
	c.PG = pg
	c.Log.Info("✓ PostgreSQL connected")

	if c.Config.ClickHouse.Enabled {
		ch, err := chclient.NewClient(c.Config.ClickHouse)
		if err != nil {
			panic("failed to connect to ClickHouse: " + err.Error())
		}
		c.CH = ch
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse disabled, usage analytics will not be persisted")
	}

	if c.Config.Redis.Enabled {
		rd, err := redisclient.NewClient(c.Config.Redis)
		if err != nil {
			panic("failed to connect to Redis: " + err.Error())
		}
		c.Redis = rd
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis disabled, rate limiting will be per-process")
	}

	if c.Config.Kafka.Enabled {
		c.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers: c.Config.Kafka.Brokers,
		})
		c.Log.Info("✓ Kafka producer ready")
	} else {
		c.Log.Info("Kafka disabled, usage events stay in-memory only")
	}
}

// MustInitDomain builds the context store and domain service
func (c *Container) MustInitDomain() {
	c.ContextRepo = pgrepo.NewChatContextRepository(c.PG.DB())

	embedCfg := c.Config.Embeddings
	apiKey := embedCfg.APIKey
	if apiKey == "" {
		apiKey = c.Config.AI.OpenAIKey
	}
	if apiKey != "" {
		provider, err := embeddings.NewProvider(embeddings.Config{
			Provider: embeddings.ProviderOpenAI,
			APIKey:   apiKey,
			Model:    embedCfg.Model,
		})
		if err != nil {
			panic("failed to init embeddings provider: " + err.Error())
		}
		c.Embedder = provider
		c.Log.Infow("✓ Embeddings provider ready", "model", embedCfg.Model)
	} else {
		c.Log.Info("No embeddings credentials, falling back to positional relevance")
	}

	c.Contexts = chatctx.NewService(c.ContextRepo, c.Embedder)

	metrics.RegisterStoreCollector(metrics.NewStoreCollector(c.Log, c.PG.DB()))
}

// MustInitAI builds the model registry and the query orchestrator
func (c *Container) MustInitAI() {
	registry, err := ai.BuildRegistry(c.Context, c.Config.AI, rawRedis(c.Redis))
	if err != nil {
		panic("failed to build model registry: " + err.Error())
	}
	if len(registry.ModelIDs()) == 0 {
		panic("no AI provider credentials configured")
	}
	c.Registry = registry
	c.Log.Infow("✓ Model registry ready",
		"models", len(registry.ModelIDs()),
		"default", registry.DefaultID(),
		"fallback", registry.FallbackEnabled())

	var publisher query.UsagePublisher
	if c.KafkaProducer != nil {
		c.Publisher = events.NewPublisher(c.KafkaProducer)
		publisher = c.Publisher
	}

	counter := tokens.Default(registry.DefaultID())
	c.Queries = query.NewService(
		registry,
		query.NewPacker(counter),
		c.Contexts,
		counter,
		publisher,
		query.Config{
			MaxResponseTokens: c.Config.Query.MaxResponseTokens,
			Temperature:       c.Config.Query.Temperature,
			SystemPrompt:      c.Config.Query.SystemPrompt,
		},
	)
}

// MustInitUsagePipeline wires the Kafka usage consumer into ClickHouse.
// Requires both backends; skipped silently when either is disabled.
func (c *Container) MustInitUsagePipeline() {
	if c.CH == nil || !c.Config.Kafka.Enabled {
		return
	}

	c.UsageRepo = chrepo.NewUsageRepository(c.CH.Conn(), chrepo.UsageRepositoryConfig{
		MaxBatchSize: c.Config.ClickHouse.FlushBatch,
		MaxAge:       c.Config.ClickHouse.FlushInterval,
	})

	usageKafkaConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: c.Config.Kafka.Brokers,
		GroupID: c.Config.Kafka.GroupID,
		Topic:   kafka.TopicModelUsage,
	})
	c.UsageConsumer = consumers.NewUsageConsumer(usageKafkaConsumer, c.UsageRepo)
	c.Log.Info("✓ Usage pipeline ready")
}

// MustInitApplication builds the HTTP server and the optional Telegram bot
func (c *Container) MustInitApplication() {
	c.HealthHandler = health.New(
		c.Log, c.PG.DB(), rawClickHouse(c.CH), rawRedis(c.Redis),
		c.Config.App.Name, appVersion,
	)

	var usageHandler *api.UsageHandler
	if c.UsageRepo != nil {
		usageHandler = api.NewUsageHandler(c.UsageRepo)
	}

	c.HTTPServer = api.NewServer(
		api.ServerConfig{
			Addr:        c.Config.Server.Addr(),
			ServiceName: c.Config.App.Name,
			Version:     appVersion,
		},
		api.Handlers{
			Health:   c.HealthHandler,
			Query:    api.NewQueryHandler(c.Queries),
			Stream:   api.NewStreamHandler(c.Queries),
			Contexts: api.NewContextHandler(c.Contexts),
			Models:   api.NewModelsHandler(c.Registry),
			Usage:    usageHandler,
		},
		c.Log,
	)

	if c.Config.Telegram.BotToken == "" {
		c.Log.Info("Telegram bot token not set, bot disabled")
		return
	}

	defaultContext := uuid.Nil
	if raw := c.Config.Telegram.DefaultContext; raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			panic("TELEGRAM_DEFAULT_CONTEXT is not a valid UUID: " + raw)
		}
		defaultContext = parsed
	}

	var sessions *redisrepo.ChatSessionRepository
	if c.Redis != nil {
		sessions = redisrepo.NewChatSessionRepository(c.Redis.Client(), 0, 0)
	}

	bot, err := telegram.NewBot(telegram.Config{
		Token:          c.Config.Telegram.BotToken,
		DefaultContext: defaultContext,
		AdminIDs:       c.Config.Telegram.AdminIDs,
	}, c.Queries, c.Registry, sessions, c.Log)
	if err != nil {
		panic("failed to create Telegram bot: " + err.Error())
	}
	c.TelegramBot = bot
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.UsageConsumer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.UsageConsumer.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Usage consumer failed", "error", err)
			}
		}()
	}

	if c.TelegramBot != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.TelegramBot.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Telegram bot failed", "error", err)
			}
		}()
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Signal all components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.HTTPServer,
		c.KafkaProducer,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}

const appVersion = "1.0.0"

// rawRedis unwraps the optional Redis client for components that take the
// driver-level handle
func rawRedis(c *redisclient.Client) *redis.Client {
	if c == nil {
		return nil
	}
	return c.Client()
}

// rawClickHouse unwraps the optional ClickHouse client
func rawClickHouse(c *chclient.Client) driver.Conn {
	if c == nil {
		return nil
	}
	return c.Conn()
}
