// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package broker provides the Redis and in-memory Broker implementations
// described in spec.md §4.1.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tclesius/ltq/internal/base"
	"github.com/tclesius/ltq/internal/errors"
)

// Redis is a base.Broker implementation backed by a single Redis instance
// (or cluster). Every mutating operation is a single Lua script so that
// the move between the visible set and a worker's in-flight set is never
// observable as two separate steps (spec §4.1, "Atomicity").
type Redis struct {
	client redis.UniversalClient
	owned  bool

	publish       *redis.Script
	consume       *redis.Script
	ackOrDrop     *redis.Script
	nackRequeue   *redis.Script
	recoverWorker *redis.Script
}

// NewRedis returns a Redis broker connected per opt using a plain
// redis.Client (single node, optional db index per spec §6's
// "redis://host:port[/db]").
func NewRedis(opt *redis.Options) *Redis {
	return newRedis(redis.NewClient(opt), true)
}

// NewRedisFromClient wraps an existing redis.UniversalClient. The caller
// retains ownership and Close is a no-op, mirroring the teacher's
// "sharedConnection" handling in server.go.
func NewRedisFromClient(c redis.UniversalClient) *Redis {
	return newRedis(c, false)
}

func newRedis(c redis.UniversalClient, owned bool) *Redis {
	return &Redis{
		client:        c,
		owned:         owned,
		publish:       redis.NewScript(publishScript),
		consume:       redis.NewScript(consumeScript),
		ackOrDrop:     redis.NewScript(ackOrDropScript),
		nackRequeue:   redis.NewScript(nackRequeueScript),
		recoverWorker: redis.NewScript(recoverWorkerScript),
	}
}

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// publishScript makes msg visible, unless it is currently recorded as
// in-flight, per the idempotent-on-ID requirement in spec §4.1.
//
// KEYS[1] = queue set, KEYS[2] = data hash, KEYS[3] = in-flight ID set
// ARGV[1] = id, ARGV[2] = visibility score, ARGV[3] = serialized message
const publishScript = `
local inflight = redis.call('SISMEMBER', KEYS[3], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
if inflight == 1 then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`

// consumeScript atomically moves up to ARGV[2] due IDs from the visible
// set into the worker's processing set and the global in-flight set,
// returning their serialized message bodies.
//
// KEYS[1] = queue set, KEYS[2] = data hash, KEYS[3] = processing set,
// KEYS[4] = in-flight ID set
// ARGV[1] = now (score), ARGV[2] = count
const consumeScript = `
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for i = 1, #ids do
	local id = ids[i]
	redis.call('ZREM', KEYS[1], id)
	redis.call('ZADD', KEYS[3], ARGV[1], id)
	redis.call('SADD', KEYS[4], id)
	local blob = redis.call('HGET', KEYS[2], id)
	if blob then
		table.insert(out, blob)
	end
end
return out
`

// ackOrDropScript removes an in-flight message permanently: used for both
// Ack and a drop-Nack, which have identical broker-side effects (spec §7
// table: "Reject" and "no error" both end with the message discarded).
//
// KEYS[1] = processing set, KEYS[2] = data hash, KEYS[3] = in-flight ID set
// ARGV[1] = id
const ackOrDropScript = `
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`

// nackRequeueScript moves an in-flight message back to the visible set at
// a new score, used by a non-drop Nack.
//
// KEYS[1] = processing set, KEYS[2] = queue set, KEYS[3] = data hash,
// KEYS[4] = in-flight ID set
// ARGV[1] = id, ARGV[2] = new visibility score, ARGV[3] = serialized message
const nackRequeueScript = `
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('SREM', KEYS[4], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`

// recoverWorkerScript reclaims every ID in a single worker's processing
// set whose lease score is older than the cutoff, returning them to the
// visible set at now.
//
// KEYS[1] = processing set, KEYS[2] = queue set, KEYS[3] = in-flight ID set
// ARGV[1] = cutoff score, ARGV[2] = now (new visibility score)
const recoverWorkerScript = `
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for i = 1, #ids do
	local id = ids[i]
	redis.call('ZREM', KEYS[1], id)
	redis.call('SREM', KEYS[3], id)
	redis.call('ZADD', KEYS[2], ARGV[2], id)
end
return #ids
`

func score(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func dataKey(queue string) string     { return "ltq:{" + queue + "}:data" }
func inflightKey(queue string) string { return "ltq:{" + queue + "}:inflight" }

func (r *Redis) Publish(queue string, msg *base.Message, delay time.Duration) error {
	blob, err := base.EncodeMessage(msg)
	if err != nil {
		return err
	}
	visibleAt := score(time.Now().Add(delay))
	ctx := context.Background()
	err = r.publish.Run(ctx, r.client,
		[]string{base.QueueKey(queue), dataKey(queue), inflightKey(queue)},
		msg.ID, visibleAt, blob,
	).Err()
	if err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("publish to %q: %v", queue, err), err)
	}
	return nil
}

func (r *Redis) Consume(queue, workerID string, count int, block time.Duration) ([]*base.Message, error) {
	ctx := context.Background()
	deadline := time.Now().Add(block)
	for {
		now := score(time.Now())
		raw, err := r.consume.Run(ctx, r.client,
			[]string{base.QueueKey(queue), dataKey(queue), base.ProcessingKey(queue, workerID), inflightKey(queue)},
			now, count,
		).StringSlice()
		if err != nil && err != redis.Nil {
			return nil, errors.E(errors.Unavailable, fmt.Sprintf("consume from %q: %v", queue, err), err)
		}
		if len(raw) > 0 {
			msgs := make([]*base.Message, 0, len(raw))
			for _, blob := range raw {
				msg, derr := base.DecodeMessage([]byte(blob))
				if derr != nil {
					continue
				}
				msgs = append(msgs, msg)
			}
			return msgs, nil
		}
		if block <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		sleepFor := 100 * time.Millisecond
		if remaining := deadline.Sub(time.Now()); remaining < sleepFor {
			sleepFor = remaining
		}
		if sleepFor <= 0 {
			return nil, nil
		}
		time.Sleep(sleepFor)
	}
}

func (r *Redis) Ack(queue, workerID string, msg *base.Message) error {
	ctx := context.Background()
	err := r.ackOrDrop.Run(ctx, r.client,
		[]string{base.ProcessingKey(queue, workerID), dataKey(queue), inflightKey(queue)},
		msg.ID,
	).Err()
	if err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("ack in %q: %v", queue, err), err)
	}
	return nil
}

func (r *Redis) Nack(queue, workerID string, msg *base.Message, delay time.Duration, drop bool) error {
	ctx := context.Background()
	if drop {
		err := r.ackOrDrop.Run(ctx, r.client,
			[]string{base.ProcessingKey(queue, workerID), dataKey(queue), inflightKey(queue)},
			msg.ID,
		).Err()
		if err != nil {
			return errors.E(errors.Unavailable, fmt.Sprintf("nack(drop) in %q: %v", queue, err), err)
		}
		return nil
	}
	blob, err := base.EncodeMessage(msg)
	if err != nil {
		return err
	}
	visibleAt := score(time.Now().Add(delay))
	err = r.nackRequeue.Run(ctx, r.client,
		[]string{base.ProcessingKey(queue, workerID), base.QueueKey(queue), dataKey(queue), inflightKey(queue)},
		msg.ID, visibleAt, blob,
	).Err()
	if err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("nack(requeue) in %q: %v", queue, err), err)
	}
	return nil
}

func (r *Redis) Recover(queue string, olderThan time.Duration) error {
	ctx := context.Background()
	cutoff := score(time.Now().Add(-olderThan))
	now := score(time.Now())

	iter := r.client.Scan(ctx, 0, base.ProcessingKeyPattern(queue), 100).Iterator()
	for iter.Next(ctx) {
		processingKey := iter.Val()
		err := r.recoverWorker.Run(ctx, r.client,
			[]string{processingKey, base.QueueKey(queue), inflightKey(queue)},
			cutoff, now,
		).Err()
		if err != nil && err != redis.Nil {
			return errors.E(errors.Unavailable, fmt.Sprintf("recover %q: %v", queue, err), err)
		}
	}
	if err := iter.Err(); err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("recover %q: scan: %v", queue, err), err)
	}
	return nil
}

func (r *Redis) Size(queue string) (int64, error) {
	n, err := r.client.ZCard(context.Background(), base.QueueKey(queue)).Result()
	if err != nil {
		return 0, errors.E(errors.Unavailable, fmt.Sprintf("size %q: %v", queue, err), err)
	}
	return n, nil
}

func (r *Redis) Clear(queue string) error {
	ctx := context.Background()
	keys := []string{base.QueueKey(queue), dataKey(queue), inflightKey(queue)}

	iter := r.client.Scan(ctx, 0, base.ProcessingKeyPattern(queue), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("clear %q: scan: %v", queue, err), err)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("clear %q: %v", queue, err), err)
	}
	return nil
}
