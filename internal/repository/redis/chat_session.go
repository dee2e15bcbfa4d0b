package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mnemosyne/internal/adapters/ai"
	"mnemosyne/pkg/errors"
)

// ChatSessionRepository keeps recent conversation turns per chat in Redis so
// follow-up questions carry their history. Sessions expire on their own;
// losing one only resets the conversation.
type ChatSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	turns  int
}

// NewChatSessionRepository creates a chat session repository. maxTurns bounds
// the stored history length, counted in messages.
func NewChatSessionRepository(client *redis.Client, ttl time.Duration, maxTurns int) *ChatSessionRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &ChatSessionRepository{
		client: client,
		ttl:    ttl,
		turns:  maxTurns,
	}
}

// History returns the stored conversation for a chat, oldest first. A missing
// session is an empty history, not an error.
func (r *ChatSessionRepository) History(ctx context.Context, chatID int64) ([]ai.Message, error) {
	data, err := r.client.Get(ctx, r.key(chatID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get chat session from redis: chat_id=%d", chatID)
	}

	var history []ai.Message
	if err := json.Unmarshal([]byte(data), &history); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal chat session: chat_id=%d", chatID)
	}
	return history, nil
}

// Append records one question/answer exchange, trimming the oldest turns
// beyond the configured bound and refreshing the TTL
func (r *ChatSessionRepository) Append(ctx context.Context, chatID int64, question, answer string) error {
	history, err := r.History(ctx, chatID)
	if err != nil {
		return err
	}

	history = append(history,
		ai.Message{Role: ai.RoleUser, Content: question},
		ai.Message{Role: ai.RoleAssistant, Content: answer},
	)
	if len(history) > r.turns {
		history = history[len(history)-r.turns:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal chat session: chat_id=%d", chatID)
	}
	if err := r.client.Set(ctx, r.key(chatID), data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save chat session to redis: chat_id=%d", chatID)
	}
	return nil
}

// Clear drops the stored conversation for a chat
func (r *ChatSessionRepository) Clear(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, r.key(chatID)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete chat session from redis: chat_id=%d", chatID)
	}
	return nil
}

func (r *ChatSessionRepository) key(chatID int64) string {
	return fmt.Sprintf("chat_session:%d", chatID)
}
