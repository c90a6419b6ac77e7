package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-knowledge-be/pkg/llm"

	"github.com/redis/go-redis/v9"
)

// HistoryStore keeps recent conversation turns per session so the language
// model can see prior context. The store is opaque to the workflow engine;
// it is keyed only by session id and expires on its own.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, messages ...llm.Message) error
	Load(ctx context.Context, sessionID string, limit int) ([]llm.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

const (
	historyKeyPrefix = "chat:history:"
	historyTTL       = 24 * time.Hour
	historyMaxLen    = 40 // messages kept per session
)

type RedisHistoryStore struct {
	rdb *redis.Client
}

func NewRedisHistoryStore(rdb *redis.Client) *RedisHistoryStore {
	return &RedisHistoryStore{rdb: rdb}
}

func (s *RedisHistoryStore) key(sessionID string) string {
	return historyKeyPrefix + sessionID
}

func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	if len(messages) == 0 {
		return nil
	}
	key := s.key(sessionID)

	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal history message: %w", err)
		}
		values = append(values, raw)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -historyMaxLen, -1)
	pipe.Expire(ctx, key, historyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisHistoryStore) Load(ctx context.Context, sessionID string, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		limit = historyMaxLen
	}
	raws, err := s.rdb.LRange(ctx, s.key(sessionID), int64(-limit), -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	messages := make([]llm.Message, 0, len(raws))
	for _, raw := range raws {
		var m llm.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue // skip corrupted entries, history is best effort
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisHistoryStore) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}

// NoopHistoryStore is used when Redis is not configured; every request
// starts with an empty history.
type NoopHistoryStore struct{}

func (NoopHistoryStore) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	return nil
}

func (NoopHistoryStore) Load(ctx context.Context, sessionID string, limit int) ([]llm.Message, error) {
	return nil, nil
}

func (NoopHistoryStore) Clear(ctx context.Context, sessionID string) error {
	return nil
}
