package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/chequeflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// farFuture is the index score of trails that never expire (2100-01-01).
const farFuture = 4102444800

// Journal implements ports.Journal using a Redis list per session and a
// ZSET index scored by expiry.
type Journal struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithTTL expires a session's trail ttl after its last append.
func WithTTL(ttl time.Duration) Option {
	return func(j *Journal) {
		j.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(j *Journal) {
		j.prefix = prefix
	}
}

// WithClock overrides the clock used to score the index.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// New creates a Redis journal with its own client.
func New(address, password string, db int, opts ...Option) *Journal {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis journal from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Journal {
	j := &Journal{
		client: client,
		prefix: "chequeflow:journal:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) key(sessionID string) string {
	return j.prefix + sessionID
}

func (j *Journal) indexKey() string {
	return j.prefix + "index"
}

// Append pushes the entry and refreshes the trail's expiry.
func (j *Journal) Append(ctx context.Context, entry ports.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	score := float64(j.now().Add(j.ttl).Unix())
	if j.ttl == 0 {
		score = farFuture
	}

	pipe := j.client.TxPipeline()
	pipe.RPush(ctx, j.key(entry.SessionID), data)
	if j.ttl > 0 {
		pipe.Expire(ctx, j.key(entry.SessionID), j.ttl)
	}
	pipe.ZAdd(ctx, j.indexKey(), backend.Z{Score: score, Member: entry.SessionID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis: %w", err)
	}
	return nil
}

// List returns the session's entries in append order.
func (j *Journal) List(ctx context.Context, sessionID string) ([]ports.Entry, error) {
	vals, err := j.client.LRange(ctx, j.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}

	entries := make([]ports.Entry, 0, len(vals))
	for _, v := range vals {
		var e ports.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Sessions returns live trails, lazily pruning expired ones from the index.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	now := float64(j.now().Unix())
	if err := j.client.ZRemRangeByScore(ctx, j.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired trails: %w", err)
	}

	ids, err := j.client.ZRange(ctx, j.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list trails: %w", err)
	}
	return ids, nil
}

// Delete removes the session's trail.
func (j *Journal) Delete(ctx context.Context, sessionID string) error {
	pipe := j.client.Pipeline()
	pipe.Del(ctx, j.key(sessionID))
	pipe.ZRem(ctx, j.indexKey(), sessionID)

	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the redis client.
func (j *Journal) Close() error {
	return j.client.Close()
}
