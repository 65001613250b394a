// Package redis provides a Redis-backed durable queue for envelopes,
// used as the Worker Pool Manager's backing store when a queue is
// configured to persist across process restarts instead of living only
// in the in-process router/scheduler heap.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch.evalgo.org/envelope"
)

// Queue handles durable envelope queue operations using Redis.
type Queue struct {
	client *redis.Client
	ctx    context.Context
	prefix string // Key prefix for queue keys (e.g., "dispatch:")
}

// LeaseRecord is the durable, wire-serializable projection of an Envelope
// held in a Redis-backed queue: enough to redeliver and retry without
// carrying the full payload through every intermediate hop twice.
type LeaseRecord struct {
	EnvelopeID string    `json:"envelopeID"`
	QueueName  string    `json:"queueName"`
	RoutingKey string    `json:"routingKey"`
	Payload    []byte    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempt    int       `json:"attempt"`
}

// FromEnvelope projects an Envelope into the durable record stored in Redis.
func FromEnvelope(e *envelope.Envelope, queueName string) LeaseRecord {
	return LeaseRecord{
		EnvelopeID: e.ID,
		QueueName:  queueName,
		RoutingKey: e.RoutingKey,
		Payload:    e.Payload,
		EnqueuedAt: e.EnqueuedAt,
		Attempt:    e.Attempt,
	}
}

// Config configures the Redis queue.
type Config struct {
	RedisURL  string // Redis URL (defaults to DISPATCH_REDIS_URL or redis://localhost:6379/0)
	KeyPrefix string // Key prefix for queue keys (defaults to "dispatch:")
}

// NewQueue creates a new Redis queue client.
func NewQueue(ctx context.Context, config Config) (*Queue, error) {
	redisURL := config.RedisURL
	if redisURL == "" {
		redisURL = os.Getenv("DISPATCH_REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "dispatch:"
	}

	return &Queue{
		client: client,
		ctx:    ctx,
		prefix: prefix,
	}, nil
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue adds a lease record to a queue.
func (q *Queue) Enqueue(record LeaseRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal lease record: %w", err)
	}

	queueKey := fmt.Sprintf("%s%s", q.prefix, record.QueueName)
	return q.client.RPush(q.ctx, queueKey, string(recordJSON)).Err()
}

// Dequeue removes and returns the next lease record from a queue (blocking).
func (q *Queue) Dequeue(queueName string, timeout time.Duration) (*LeaseRecord, error) {
	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := q.client.BLPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil // Timeout, nothing available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var record LeaseRecord
	if err := json.Unmarshal([]byte(result[1]), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease record: %w", err)
	}

	return &record, nil
}

// MarkProcessing adds an envelope to the processing set with a lease deadline.
func (q *Queue) MarkProcessing(envelopeID string, deadline time.Time) error {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	return q.client.ZAdd(q.ctx, processingKey, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: envelopeID,
	}).Err()
}

// CompleteLease removes an envelope from the processing set.
func (q *Queue) CompleteLease(envelopeID string) error {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	return q.client.ZRem(q.ctx, processingKey, envelopeID).Err()
}

// FailLease marks a lease as failed and optionally re-enqueues the envelope,
// mirroring the Execution Runtime's attempt/backoff retry decision (spec §4.5).
func (q *Queue) FailLease(record LeaseRecord, requeue bool) error {
	if err := q.CompleteLease(record.EnvelopeID); err != nil {
		return err
	}

	if requeue {
		record.Attempt++
		record.EnqueuedAt = time.Now()
		return q.Enqueue(record)
	}

	return nil
}

// QueueDepth returns the number of envelopes waiting in a queue.
func (q *Queue) QueueDepth(queueName string) (int, error) {
	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)
	depth, err := q.client.LLen(q.ctx, queueKey).Result()
	if err != nil {
		return 0, err
	}
	return int(depth), nil
}

// IsProcessing checks if an envelope is in the processing set; its lease
// deadline is not compared with the current time.
func (q *Queue) IsProcessing(envelopeID string) (bool, error) {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	score, err := q.client.ZScore(q.ctx, processingKey, envelopeID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return score > 0, nil
}

// ExpiredLeases returns envelope IDs whose processing deadline has passed
// without a completion or renewal, the reclaim set for lease revocation.
func (q *Queue) ExpiredLeases() ([]string, error) {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	now := float64(time.Now().Unix())
	return q.client.ZRangeByScore(q.ctx, processingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
}

// WaitForLeaseCompletion waits for an envelope's lease to clear the
// processing set (success or failure) or to time out.
func (q *Queue) WaitForLeaseCompletion(envelopeID string, timeout time.Duration, checkState func(string) (envelope.State, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		inProcessing, err := q.IsProcessing(envelopeID)
		if err != nil {
			return fmt.Errorf("failed to check lease status: %w", err)
		}

		if !inProcessing {
			state, err := checkState(envelopeID)
			if err != nil {
				return fmt.Errorf("failed to get envelope state: %w", err)
			}

			switch state {
			case envelope.StateSuccess:
				return nil
			case envelope.StateFailed, envelope.StateDeadLettered:
				return fmt.Errorf("envelope %s terminated in state %s", envelopeID, state)
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for lease completion")
		}
	}

	return nil
}
