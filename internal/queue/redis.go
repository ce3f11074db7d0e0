package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobintel/internal/model"
)

// All keys of one queue share a {name} hash tag so the scripts stay on a
// single cluster slot.
type redisKeys struct {
	ready, delayed, active, dead     string
	data, attempts, errors, failedAt string
}

func newRedisKeys(name string) redisKeys {
	p := "jobintel:{" + name + "}:"
	return redisKeys{
		ready:    p + "ready",
		delayed:  p + "delayed",
		active:   p + "active",
		dead:     p + "dead",
		data:     p + "data",
		attempts: p + "attempts",
		errors:   p + "errors",
		failedAt: p + "failed",
	}
}

// receiveScript promotes due retries and expired leases, then pops the
// oldest ready id, counts the attempt and leases it.
var receiveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now, 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('LPUSH', KEYS[1], id)
end
local stalled = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', now, 'LIMIT', 0, 100)
for _, id in ipairs(stalled) do
  redis.call('ZREM', KEYS[3], id)
  redis.call('RPUSH', KEYS[1], id)
end
local id = redis.call('RPOP', KEYS[1])
if not id then
  return false
end
local attempts = redis.call('HINCRBY', KEYS[4], id, 1)
redis.call('ZADD', KEYS[3], now + tonumber(ARGV[2]), id)
local data = redis.call('HGET', KEYS[5], id)
if not data then
  data = ''
end
return {id, attempts, data}
`)

// Settling scripts only act while the caller still holds the lease: the id
// must be active and its attempt counter must match the delivery.
const leaseGuard = `
local current = redis.call('HGET', KEYS[2], ARGV[1])
if not current or tonumber(current) ~= tonumber(ARGV[2]) then
  return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
`

var ackScript = redis.NewScript(leaseGuard + `
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

var retryScript = redis.NewScript(leaseGuard + `
redis.call('ZADD', KEYS[3], tonumber(ARGV[3]), ARGV[1])
redis.call('HSET', KEYS[4], ARGV[1], ARGV[4])
return 1
`)

var buryScript = redis.NewScript(leaseGuard + `
redis.call('HSET', KEYS[4], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[5], ARGV[1], ARGV[4])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[5])
redis.call('LPUSH', KEYS[3], ARGV[1])
return 1
`)

var requeueScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[3], ARGV[1], 0)
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// RedisQueue is the broker-backed queue used between separate producer and
// consumer processes.
type RedisQueue struct {
	client *redis.Client
	opts   Options
	keys   redisKeys
	logger *slog.Logger
}

// DialRedis parses redisURL and verifies connectivity.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedis returns a queue over client. The queue owns the client and closes
// it on Close.
func NewRedis(client *redis.Client, opts Options, logger *slog.Logger) *RedisQueue {
	opts = opts.WithDefaults()
	return &RedisQueue{client: client, opts: opts, keys: newRedisKeys(opts.Name), logger: logger}
}

func (q *RedisQueue) Publish(ctx context.Context, batch model.Batch) error {
	data, err := json.Marshal(envelope{Batch: batch, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", batch.ID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.keys.data, batch.ID, data)
		pipe.HSet(ctx, q.keys.attempts, batch.ID, 0)
		pipe.LPush(ctx, q.keys.ready, batch.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish batch %s: %w", batch.ID, err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	return poll(ctx, q.opts.PollInterval, q.tryReceive)
}

func (q *RedisQueue) tryReceive(ctx context.Context) (*Delivery, error) {
	for {
		now := time.Now()
		res, err := receiveScript.Run(ctx, q.client,
			[]string{q.keys.ready, q.keys.delayed, q.keys.active, q.keys.attempts, q.keys.data},
			now.UnixMilli(), q.opts.Lease.Milliseconds(),
		).Slice()
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("receive: %w", err)
		}
		if len(res) != 3 {
			return nil, fmt.Errorf("receive: unexpected reply %v", res)
		}

		id, _ := res[0].(string)
		attempt, _ := res[1].(int64)
		raw, _ := res[2].(string)

		if raw == "" {
			// Data vanished; drop the orphan id.
			q.logger.Warn("dropping queue entry without payload", "queue", q.opts.Name, "batch_id", id)
			if err := q.ack(ctx, id, int(attempt)); err != nil {
				q.logger.Warn("failed to drop orphan queue entry", "queue", q.opts.Name, "batch_id", id, "error", err)
			}
			continue
		}

		if int(attempt) > q.opts.MaxAttempts {
			if err := q.bury(ctx, id, int(attempt), int(attempt)-1, leaseExpiredText(int(attempt)-1), now); err != nil {
				return nil, err
			}
			q.logger.Warn("batch dead-lettered after expired leases",
				"queue", q.opts.Name, "batch_id", id, "attempts", attempt-1)
			continue
		}

		var env envelope
		if decodeErr := json.Unmarshal([]byte(raw), &env); decodeErr != nil {
			if err := q.bury(ctx, id, int(attempt), int(attempt), "undecodable payload: "+decodeErr.Error(), now); err != nil {
				return nil, err
			}
			continue
		}

		return &Delivery{
			ID:         id,
			Batch:      env.Batch,
			Attempt:    int(attempt),
			EnqueuedAt: env.EnqueuedAt,
			LeaseUntil: now.Add(q.opts.Lease),
		}, nil
	}
}

func (q *RedisQueue) settle(ctx context.Context, script *redis.Script, keys []string, id string, attempt int, extra ...any) error {
	args := append([]any{id, attempt}, extra...)
	n, err := script.Run(ctx, q.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("settle %s: %w", id, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *RedisQueue) ack(ctx context.Context, id string, attempt int) error {
	return q.settle(ctx, ackScript,
		[]string{q.keys.active, q.keys.attempts, q.keys.data, q.keys.errors},
		id, attempt)
}

// bury dead-letters id, recording attempts as the number of deliveries that
// actually ran.
func (q *RedisQueue) bury(ctx context.Context, id string, attempt, attempts int, reason string, at time.Time) error {
	return q.settle(ctx, buryScript,
		[]string{q.keys.active, q.keys.attempts, q.keys.dead, q.keys.errors, q.keys.failedAt},
		id, attempt, reason, at.UTC().UnixMilli(), attempts)
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.ack(ctx, d.ID, d.Attempt)
}

func (q *RedisQueue) Nack(ctx context.Context, d *Delivery, cause error) (Outcome, error) {
	now := time.Now()
	if d.Attempt >= q.opts.MaxAttempts {
		if err := q.bury(ctx, d.ID, d.Attempt, d.Attempt, errorText(cause), now); err != nil {
			return Outcome{}, err
		}
		return Outcome{DeadLettered: true}, nil
	}

	retryAt := now.Add(q.opts.RetryDelay(d.Attempt))
	err := q.settle(ctx, retryScript,
		[]string{q.keys.active, q.keys.attempts, q.keys.delayed, q.keys.errors},
		d.ID, d.Attempt, retryAt.UnixMilli(), errorText(cause))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{RetryAt: retryAt}, nil
}

// DeadLetters returns up to limit dead letters, most recently failed first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.LRange(ctx, q.keys.dead, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.Pipeline()
	data := pipe.HMGet(ctx, q.keys.data, ids...)
	attempts := pipe.HMGet(ctx, q.keys.attempts, ids...)
	errs := pipe.HMGet(ctx, q.keys.errors, ids...)
	failed := pipe.HMGet(ctx, q.keys.failedAt, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load dead letters: %w", err)
	}

	out := make([]model.DeadLetter, 0, len(ids))
	for i, id := range ids {
		dl := model.DeadLetter{ID: id}
		if raw, ok := data.Val()[i].(string); ok {
			var env envelope
			if err := json.Unmarshal([]byte(raw), &env); err == nil {
				dl.Batch = env.Batch
			}
		}
		if s, ok := attempts.Val()[i].(string); ok {
			dl.Attempts, _ = strconv.Atoi(s)
		}
		if s, ok := errs.Val()[i].(string); ok {
			dl.LastError = s
		}
		if s, ok := failed.Val()[i].(string); ok {
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				dl.FailedAt = time.UnixMilli(ms).UTC()
			}
		}
		out = append(out, dl)
	}
	return out, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, id string) error {
	n, err := requeueScript.Run(ctx, q.client,
		[]string{q.keys.dead, q.keys.ready, q.keys.attempts, q.keys.errors, q.keys.failedAt},
		id,
	).Int()
	if err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.keys.ready)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	active := pipe.ZCard(ctx, q.keys.active)
	dead := pipe.LLen(ctx, q.keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Waiting: ready.Val(), Delayed: delayed.Val(), Active: active.Val(), Dead: dead.Val()}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
