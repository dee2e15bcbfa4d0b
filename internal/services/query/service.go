package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"mnemosyne/internal/adapters/ai"
	"mnemosyne/internal/domain/chatctx"
	"mnemosyne/internal/events"
	"mnemosyne/internal/metrics"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
	"mnemosyne/pkg/tokens"
)

// ContextSource supplies the context and ranked content behind a query.
// Implemented by the chatctx domain service.
type ContextSource interface {
	GetContext(ctx context.Context, id uuid.UUID) (*chatctx.Context, error)
	ScoredItems(ctx context.Context, contextID uuid.UUID, query string) ([]*chatctx.ScoredItem, error)
}

// UsagePublisher durably records usage events. Optional; publication is
// best effort and never fails a request.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event *events.UsageEvent) error
}

// Config carries orchestration defaults applied when Options leave a knob unset
type Config struct {
	MaxResponseTokens int
	Temperature       float64
	SystemPrompt      string
}

// Service orchestrates one query end to end: load context, pack a prompt,
// dispatch to a model, retry once on fallback, record usage. Request state
// is local to each call; a Service is safe for concurrent use.
type Service struct {
	registry  *ai.Registry
	packer    *Packer
	contexts  ContextSource
	counter   tokens.Counter
	publisher UsagePublisher
	cfg       Config
	log       *logger.Logger
}

// NewService creates the query orchestrator. publisher may be nil.
func NewService(registry *ai.Registry, packer *Packer, contexts ContextSource, counter tokens.Counter, publisher UsagePublisher, cfg Config) *Service {
	if cfg.MaxResponseTokens <= 0 {
		cfg.MaxResponseTokens = 1024
	}
	return &Service{
		registry:  registry,
		packer:    packer,
		contexts:  contexts,
		counter:   counter,
		publisher: publisher,
		cfg:       cfg,
		log:       logger.Get().With("component", "query_service"),
	}
}

// ProcessQuery answers queryText against the named context in blocking mode.
// On a provider failure it retries once with the registry's fallback
// connector; both attempts are recorded in usage metrics and the returned
// result names whichever model ultimately answered.
func (s *Service) ProcessQuery(ctx context.Context, queryText string, contextID uuid.UUID, opts Options) (*Result, error) {
	started := time.Now()
	queryID := uuid.New()

	conn, asm, req, err := s.prepare(ctx, queryText, contextID, opts)
	if err != nil {
		return nil, err
	}

	attemptStart := time.Now()
	resp, callErr := conn.Chat(ctx, req)
	s.recordAttempt(attempt{
		conn:      conn,
		assembly:  asm,
		resp:      resp,
		err:       callErr,
		latency:   time.Since(attemptStart),
		queryID:   queryID,
		contextID: contextID,
		userID:    opts.UserID,
	})

	fallbackUsed := false
	if callErr != nil && eligibleForFallback(callErr) {
		fb, fbErr := s.registry.FallbackFor(conn.Descriptor().ID)
		if fbErr != nil {
			s.log.Debugw("No fallback available", "model", conn.Descriptor().ID, "error", fbErr)
		} else {
			s.log.Warnw("Primary model failed, retrying with fallback",
				"primary", conn.Descriptor().ID,
				"fallback", fb.Descriptor().ID,
				"error", callErr)

			fbReq := req
			// Provider knobs are primary-specific and must not leak across
			fbReq.Options = ai.ProviderOptions{}

			attemptStart = time.Now()
			fbResp, fbCallErr := fb.Chat(ctx, fbReq)
			s.recordAttempt(attempt{
				conn:      fb,
				assembly:  asm,
				resp:      fbResp,
				err:       fbCallErr,
				latency:   time.Since(attemptStart),
				queryID:   queryID,
				contextID: contextID,
				userID:    opts.UserID,
				fallback:  true,
			})

			if fbCallErr == nil {
				conn, resp, callErr = fb, fbResp, nil
				fallbackUsed = true
			} else {
				callErr = fbCallErr
			}
		}
	}

	elapsed := time.Since(started)
	if callErr != nil {
		metrics.RecordQuery(conn.Descriptor().ID, "blocking", "error", elapsed)
		return nil, callErr
	}
	metrics.RecordQuery(conn.Descriptor().ID, "blocking", "success", elapsed)

	promptTokens, completionTokens := s.accountTokens(asm, resp.Usage, resp.Content)

	result := &Result{
		ID:           queryID,
		Query:        queryText,
		Response:     resp.Content,
		ContextID:    contextID,
		ModelID:      conn.Descriptor().ID,
		FallbackUsed: fallbackUsed,
	}
	if opts.IncludeMetadata {
		result.Metadata = &Metadata{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
			ResponseTimeMs:   elapsed.Milliseconds(),
			ContextItems:     itemRefs(asm.Included),
		}
	}
	return result, nil
}

// StreamQuery answers queryText as a live event stream. The preamble
// (validation, context load, packing, model resolution) runs synchronously
// so argument errors surface before any event; the returned channel then
// delivers start, chunks in provider order, and one terminal end or error
// event. A provider failure before the first chunk is retried once on the
// fallback connector without the consumer noticing; a mid-stream failure
// ends the stream with a best-effort error event instead.
func (s *Service) StreamQuery(ctx context.Context, queryText string, contextID uuid.UUID, opts Options) (<-chan Event, error) {
	started := time.Now()
	queryID := uuid.New()

	conn, asm, req, err := s.prepare(ctx, queryText, contextID, opts)
	if err != nil {
		return nil, err
	}

	relay := NewRelay()

	go func() {
		attemptStart := time.Now()
		chunks, errs := conn.ChatStream(ctx, req)
		content, usage, runErr := relay.Run(ctx, chunks, errs)

		if ctx.Err() != nil || errors.Is(runErr, context.Canceled) {
			// Caller went away; nothing beyond completed attempts is recorded
			relay.Abort()
			return
		}

		s.recordStreamAttempt(attempt{
			conn:      conn,
			assembly:  asm,
			err:       runErr,
			latency:   time.Since(attemptStart),
			queryID:   queryID,
			contextID: contextID,
			userID:    opts.UserID,
		}, content, usage)

		if runErr == nil {
			metrics.RecordQuery(conn.Descriptor().ID, "stream", "success", time.Since(started))
			relay.End()
			return
		}

		if content == "" && eligibleForFallback(runErr) {
			if fb, fbErr := s.registry.FallbackFor(conn.Descriptor().ID); fbErr == nil {
				s.log.Warnw("Stream failed before first chunk, retrying with fallback",
					"primary", conn.Descriptor().ID,
					"fallback", fb.Descriptor().ID,
					"error", runErr)

				fbReq := req
				fbReq.Options = ai.ProviderOptions{}

				attemptStart = time.Now()
				chunks, errs = fb.ChatStream(ctx, fbReq)
				content, usage, runErr = relay.Run(ctx, chunks, errs)

				if ctx.Err() != nil || errors.Is(runErr, context.Canceled) {
					relay.Abort()
					return
				}

				s.recordStreamAttempt(attempt{
					conn:      fb,
					assembly:  asm,
					err:       runErr,
					latency:   time.Since(attemptStart),
					queryID:   queryID,
					contextID: contextID,
					userID:    opts.UserID,
					fallback:  true,
				}, content, usage)

				if runErr == nil {
					metrics.RecordQuery(fb.Descriptor().ID, "stream", "success", time.Since(started))
					relay.End()
					return
				}
			}
		}

		metrics.RecordQuery(conn.Descriptor().ID, "stream", "error", time.Since(started))
		relay.Fail("The response stream was interrupted: " + userMessage(runErr))
	}()

	return relay.Events(), nil
}

// prepare runs the shared request preamble: validate, load the context,
// resolve a connector, rank and pack the content, and shape the request.
func (s *Service) prepare(ctx context.Context, queryText string, contextID uuid.UUID, opts Options) (ai.Connector, Assembly, ai.ChatRequest, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, Assembly{}, ai.ChatRequest{}, errors.NewValidationError("query", "query must not be empty", queryText)
	}
	if contextID == uuid.Nil {
		return nil, Assembly{}, ai.ChatRequest{}, errors.NewValidationError("context_id", "context id is required", contextID.String())
	}

	if _, err := s.contexts.GetContext(ctx, contextID); err != nil {
		return nil, Assembly{}, ai.ChatRequest{}, errors.Wrapf(err, "load context %s", contextID)
	}

	conn, err := s.registry.Resolve(opts.ModelID)
	if err != nil {
		return nil, Assembly{}, ai.ChatRequest{}, err
	}

	items, err := s.contexts.ScoredItems(ctx, contextID, queryText)
	if err != nil {
		// Ranking failure degrades to a query-only prompt, it never fails
		// the request
		s.log.Warnw("Content ranking failed, answering without context",
			"context", contextID, "error", err)
		items = nil
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = s.cfg.SystemPrompt
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxResponseTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = s.cfg.Temperature
	}

	historyTokens := 0
	for _, m := range opts.History {
		historyTokens += s.counter.Count(m.Content)
	}

	asm := s.packer.Pack(queryText, items, conn.Descriptor().MaxContextTokens, maxTokens, systemPrompt, historyTokens)
	metrics.RecordPacking(len(asm.Included), len(items)-len(asm.Included), asm.UsedTokens)

	messages := make([]ai.Message, 0, len(opts.History)+2)
	if systemPrompt != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, opts.History...)
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: asm.Prompt})

	req := ai.ChatRequest{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Options:     opts.Provider,
	}
	return conn, asm, req, nil
}

// attempt describes one completed provider call for usage accounting
type attempt struct {
	conn      ai.Connector
	assembly  Assembly
	resp      *ai.ChatResponse
	err       error
	latency   time.Duration
	queryID   uuid.UUID
	contextID uuid.UUID
	userID    uuid.UUID
	fallback  bool
	stream    bool
}

// recordAttempt folds a blocking attempt into registry metrics, Prometheus,
// and the durable usage pipeline. Caller-cancelled attempts are not counted.
func (s *Service) recordAttempt(a attempt) {
	if errors.Is(a.err, context.Canceled) {
		return
	}

	var promptTokens, completionTokens int
	if a.resp != nil {
		promptTokens, completionTokens = s.accountTokens(a.assembly, a.resp.Usage, a.resp.Content)
	}
	s.record(a, promptTokens, completionTokens)
}

// recordStreamAttempt is recordAttempt for streamed calls, approximating
// completion tokens from accumulated content when the provider did not
// report exact usage
func (s *Service) recordStreamAttempt(a attempt, content string, usage *ai.Usage) {
	if errors.Is(a.err, context.Canceled) {
		return
	}
	a.stream = true

	reported := ai.Usage{}
	if usage != nil {
		reported = *usage
	}
	promptTokens, completionTokens := s.accountTokens(a.assembly, reported, content)
	s.record(a, promptTokens, completionTokens)
}

func (s *Service) record(a attempt, promptTokens, completionTokens int) {
	d := a.conn.Descriptor()

	s.registry.RecordUsage(d.ID, ai.UsageSample{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Latency:          a.latency,
		Err:              a.err,
	})

	status := "success"
	if a.err != nil {
		status = "error"
	}
	metrics.RecordProviderCall(d.Provider.String(), d.ID, status, a.latency)
	metrics.RecordTokens(d.ID, promptTokens, completionTokens)

	event := events.NewUsageEvent()
	event.QueryID = a.queryID.String()
	event.ContextID = a.contextID.String()
	if a.userID != uuid.Nil {
		event.UserID = a.userID.String()
	}
	event.Provider = d.Provider.String()
	event.ModelID = d.ID
	event.ModelFamily = d.Family
	event.PromptTokens = promptTokens
	event.CompletionTokens = completionTokens
	event.TotalTokens = promptTokens + completionTokens
	event.LatencyMs = a.latency.Milliseconds()
	event.Stream = a.stream
	event.Fallback = a.fallback
	event.Success = a.err == nil
	if a.err != nil {
		event.ErrorMsg = a.err.Error()
	}

	if pricing, ok := ai.PricingFor(d.ID); ok {
		event.InputCostUSD = pricing.Cost(promptTokens, 0).InexactFloat64()
		event.OutputCostUSD = pricing.Cost(0, completionTokens).InexactFloat64()
		event.TotalCostUSD = event.InputCostUSD + event.OutputCostUSD
		metrics.RecordCost(d.Provider.String(), d.ID, event.TotalCostUSD)
	}

	if s.publisher == nil {
		return
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishUsage(pubCtx, event); err != nil {
			s.log.Warnw("Usage event publication failed", "model", d.ID, "error", err)
		}
	}()
}

// accountTokens combines the packer's usage with provider-reported counts,
// approximating with the local counter where the provider was silent
func (s *Service) accountTokens(asm Assembly, reported ai.Usage, content string) (int, int) {
	promptTokens := reported.PromptTokens
	if promptTokens == 0 {
		promptTokens = asm.UsedTokens + asm.ReservedTokens
	}
	completionTokens := reported.CompletionTokens
	if completionTokens == 0 && content != "" {
		completionTokens = s.counter.Count(content)
	}
	return promptTokens, completionTokens
}

// eligibleForFallback reports whether the failure is a normalized provider
// error; validation problems and caller cancellation are not retried
func eligibleForFallback(err error) bool {
	_, ok := ai.AsProviderError(err)
	return ok
}

func itemRefs(included []*chatctx.ScoredItem) []ItemRef {
	refs := make([]ItemRef, 0, len(included))
	for _, si := range included {
		refs = append(refs, ItemRef{ID: si.Item.ID, Title: si.Item.Title, Relevance: si.Relevance})
	}
	return refs
}

// userMessage strips provider internals from an error before it reaches a
// streaming consumer
func userMessage(err error) string {
	if pe, ok := ai.AsProviderError(err); ok {
		switch pe.Kind {
		case ai.ErrorKindRateLimit:
			return "the model is receiving too many requests, try again shortly"
		case ai.ErrorKindTimeout:
			return "the model took too long to respond"
		case ai.ErrorKindAuth:
			return "the model rejected the service credentials"
		default:
			return "the model provider reported an error"
		}
	}
	return "an unexpected error occurred"
}
