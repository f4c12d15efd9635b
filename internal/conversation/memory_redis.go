package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const extractionKeyPrefix = "extraction:"

// RedisMemoryStore is a MemoryStore backed by Redis, for deployments with
// more than one pipeline instance. Expiry rides on the key TTL.
type RedisMemoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisMemoryStore creates a Redis-backed memory store.
func NewRedisMemoryStore(redisClient *redis.Client, ttl time.Duration) *RedisMemoryStore {
	if redisClient == nil {
		return nil
	}
	return &RedisMemoryStore{
		redis:  redisClient,
		tracer: otel.Tracer("agendia.internal.conversation.memory"),
		ttl:    ttl,
	}
}

func (s *RedisMemoryStore) Get(ctx context.Context, subject string) (ExtractedFields, error) {
	if subject == "" {
		return ExtractedFields{}, errors.New("conversation: memory subject required")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.memory.get")
	defer span.End()

	data, err := s.redis.Get(ctx, extractionKey(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ExtractedFields{}, nil
		}
		span.RecordError(err)
		return ExtractedFields{}, fmt.Errorf("conversation: get extraction memory: %w", err)
	}

	var fields ExtractedFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return ExtractedFields{}, fmt.Errorf("conversation: decode extraction memory: %w", err)
	}
	return fields, nil
}

// mergeWatchRetries bounds optimistic-lock retries when concurrent turns for
// the same subject race on the key.
const mergeWatchRetries = 5

// Merge folds newer fields into the stored record under WATCH so a
// concurrent merge on another worker cannot overwrite this turn's fields.
func (s *RedisMemoryStore) Merge(ctx context.Context, subject string, newer ExtractedFields) (ExtractedFields, error) {
	if subject == "" {
		return ExtractedFields{}, errors.New("conversation: memory subject required")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.memory.merge")
	defer span.End()

	key := extractionKey(subject)
	var merged ExtractedFields
	txn := func(tx *redis.Tx) error {
		var prior ExtractedFields
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &prior); err != nil {
				return fmt.Errorf("decode extraction memory: %w", err)
			}
		}

		merged = prior.Merge(newer)
		out, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode extraction memory: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < mergeWatchRetries; i++ {
		err := s.redis.Watch(ctx, txn, key)
		if err == nil {
			return merged, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		span.RecordError(err)
		return ExtractedFields{}, fmt.Errorf("conversation: merge extraction memory: %w", err)
	}
	return ExtractedFields{}, fmt.Errorf("conversation: merge extraction memory: %w", redis.TxFailedErr)
}

func (s *RedisMemoryStore) Reset(ctx context.Context, subject string) error {
	if subject == "" {
		return errors.New("conversation: memory subject required")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.memory.reset")
	defer span.End()

	if err := s.redis.Del(ctx, extractionKey(subject)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: reset extraction memory: %w", err)
	}
	return nil
}

func extractionKey(subject string) string {
	return extractionKeyPrefix + subject
}
