// Package queue is a Redis list backed job queue with at-least-once delivery.
//
// Jobs are LPUSHed onto a pending list and moved atomically onto a processing
// list when popped (BRPOPLPUSH). A worker acks a job by removing it from the
// processing list. Failed jobs are pushed back until they run out of
// attempts, after which they land on a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix   = "sessionauth:queue:email"
	DefaultMaxAttempts = 3
)

var ErrNoJob = errors.New("no job available")

// Job is one unit of work. Payload is the JSON encoded job argument.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`

	// raw is the exact list entry, needed to LREM it from the processing list
	raw string
}

// Decode unmarshals the payload into v
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Name, err)
	}
	return nil
}

// Client wraps Redis List operations for a single named queue.
type Client struct {
	rdb         redis.UniversalClient
	keyPrefix   string
	maxAttempts int
}

// NewClient creates a queue client with address/password.
func NewClient(addr, password string) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
		keyPrefix:   DefaultKeyPrefix,
		maxAttempts: DefaultMaxAttempts,
	}
}

// NewClientWithRedis creates a queue client from an existing redis client.
func NewClientWithRedis(rdb redis.UniversalClient) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Client{rdb: rdb, keyPrefix: DefaultKeyPrefix, maxAttempts: DefaultMaxAttempts}, nil
}

// WithKeyPrefix namespaces the queue keys
func (c *Client) WithKeyPrefix(prefix string) *Client {
	c.keyPrefix = prefix
	return c
}

// WithMaxAttempts sets how many times a job runs before it is dead-lettered
func (c *Client) WithMaxAttempts(n int) *Client {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

func (c *Client) pendingKey() string    { return c.keyPrefix }
func (c *Client) processingKey() string { return c.keyPrefix + ":processing" }
func (c *Client) deadKey() string       { return c.keyPrefix + ":dead" }

// Close closes the underlying redis client
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Enqueue serializes payload into a new job and pushes it onto the queue.
func (c *Client) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	if c == nil || c.rdb == nil {
		return "", errors.New("redis client is not initialized")
	}
	if name == "" {
		return "", errors.New("job name is empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     data,
		MaxAttempts: c.maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.pendingKey(), raw).Err(); err != nil {
		return "", fmt.Errorf("lpush job: %w", err)
	}
	return job.ID, nil
}

// Pop blocks until a job is available or timeout is reached. The job stays
// on the processing list until it is acked or retried.
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	if c == nil || c.rdb == nil {
		return nil, errors.New("redis client is not initialized")
	}
	result, err := c.rdb.BRPopLPush(ctx, c.pendingKey(), c.processingKey(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("brpoplpush job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(result), &job); err != nil {
		// unreadable entries would be redelivered forever
		c.rdb.LRem(ctx, c.processingKey(), 1, result)
		c.rdb.LPush(ctx, c.deadKey(), result)
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	job.raw = result
	return &job, nil
}

// Ack removes a finished job from the processing list.
func (c *Client) Ack(ctx context.Context, job *Job) error {
	if err := c.rdb.LRem(ctx, c.processingKey(), 1, job.raw).Err(); err != nil {
		return fmt.Errorf("lrem job: %w", err)
	}
	return nil
}

// moveScript removes ARGV[1] from the processing list and, only if it was
// there, pushes ARGV[2] onto the target list.
// KEYS[1] = processing list, KEYS[2] = target list
var moveScript = redis.NewScript(`
	local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
	if removed > 0 then
		redis.call('LPUSH', KEYS[2], ARGV[2])
		return 1
	end
	return 0
`)

// Retry records a failed attempt. The job is requeued while it has attempts
// left and dead-lettered otherwise. Returns true if the job was dead-lettered.
func (c *Client) Retry(ctx context.Context, job *Job, cause error) (bool, error) {
	next := *job
	next.Attempt++
	if cause != nil {
		next.LastError = cause.Error()
	}
	dead := next.Attempt >= next.MaxAttempts
	target := c.pendingKey()
	if dead {
		target = c.deadKey()
	}

	raw, err := json.Marshal(&next)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}
	if err := moveScript.Run(ctx, c.rdb, []string{c.processingKey(), target}, job.raw, string(raw)).Err(); err != nil {
		return false, fmt.Errorf("retry job script: %w", err)
	}
	return dead, nil
}

// Recover moves every job left on the processing list by a crashed worker
// back onto the pending list. Call before starting workers.
func (c *Client) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := c.rdb.RPopLPush(ctx, c.processingKey(), c.pendingKey()).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("rpoplpush processing: %w", err)
		}
		moved++
	}
}

// Depth returns the lengths of the pending, processing and dead-letter lists.
func (c *Client) Depth(ctx context.Context) (pending, processing, dead int64, err error) {
	if pending, err = c.rdb.LLen(ctx, c.pendingKey()).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("llen pending: %w", err)
	}
	if processing, err = c.rdb.LLen(ctx, c.processingKey()).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("llen processing: %w", err)
	}
	if dead, err = c.rdb.LLen(ctx, c.deadKey()).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("llen dead: %w", err)
	}
	return pending, processing, dead, nil
}
