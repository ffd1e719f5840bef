// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package base defines the wire-level Message type and the Broker
// interface shared by every broker implementation, plus the Redis key
// layout both implementations (and any future one) must agree on.
//
// Keeping these at the bottom of the dependency graph (no import of the
// root ltq package) is what lets package broker implement Broker without
// creating an import cycle back into ltq, the same layering the teacher
// uses between its root package and internal/base.
package base

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tclesius/ltq/internal/errors"
)

// DefaultBlockDuration is the upper bound a Consume call may wait for at
// least one message before returning empty-handed (spec §4.1: "block is an
// upper bound on how long the call may wait").
const DefaultBlockDuration = 2 * time.Second

// DefaultRecoverAfter is a lease age for recover (spec §5, "Open
// questions"). Nothing in this module applies it automatically: a Worker
// calls Recover only when WorkerConfig.RecoverAfter is set.
const DefaultRecoverAfter = 30 * time.Second

// ValidateQueueName validates a given queue name. Any string with at least
// one non-whitespace character is accepted (spec §6: "Queue names are opaque strings; any character
// accepted by the broker is accepted by LTQ").
func ValidateQueueName(queue string) error {
	if len(strings.TrimSpace(queue)) == 0 {
		return errors.E(errors.InvalidArgument, "queue name must contain one or more characters")
	}
	return nil
}

// Message is the wire-level representation of a unit of work. It is the
// payload the broker stores, moves between the visible and in-flight sets,
// and returns from Consume. The root package's Message type is a type
// alias of this one (see message.go), so callers never see the base
// package directly.
type Message struct {
	ID        string         `json:"id"`
	TaskName  string         `json:"task_name"`
	Args      []any          `json:"args"`
	Kwargs    map[string]any `json:"kwargs"`
	Ctx       map[string]any `json:"ctx"`
	CreatedAt time.Time      `json:"created_at"`
}

// EncodeMessage marshals msg into its wire form. Numbers are encoded as
// plain JSON numbers, so the round trip through DecodeMessage must use a
// decoder configured with UseNumber to avoid silently widening ints to
// float64 (see DecodeMessage).
func EncodeMessage(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.E(errors.InvalidArgument, "cannot encode nil message")
	}
	return json.Marshal(msg)
}

// DecodeMessage unmarshals data produced by EncodeMessage. It decodes
// numeric values as json.Number rather than float64, so integer and float
// arguments stay distinguishable after a round trip; use the typed
// accessors in kwargs.go (backed by spf13/cast) to pull values back out as
// the type the caller expects.
func DecodeMessage(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, errors.E(errors.Internal, fmt.Sprintf("decode message: %v", err), err)
	}
	return &msg, nil
}

// Broker is the interface every message broker implementation satisfies.
// See package broker for the Redis and in-memory implementations, and
// spec.md §4.1 for the full contract.
type Broker interface {
	// Publish makes msg visible on queue at now+delay. Republishing the
	// same msg.ID while it is still in-flight must not duplicate it in
	// the visible set.
	Publish(queue string, msg *Message, delay time.Duration) error

	// Consume atomically moves up to count visible, due messages on queue
	// into workerID's in-flight set and returns them. block bounds how
	// long the call may wait for at least one message.
	Consume(queue, workerID string, count int, block time.Duration) ([]*Message, error)

	// Ack removes msg from workerID's in-flight set and discards it.
	Ack(queue, workerID string, msg *Message) error

	// Nack removes msg from workerID's in-flight set. Unless drop is set,
	// it republishes msg with visibility at now+delay.
	Nack(queue, workerID string, msg *Message, delay time.Duration, drop bool) error

	// Recover reclaims every in-flight message on queue, across all
	// worker IDs, whose lease is older than olderThan, returning each to
	// the visible set at now.
	Recover(queue string, olderThan time.Duration) error

	// Size returns the number of visible messages on queue.
	Size(queue string) (int64, error)

	// Clear deletes every visible and in-flight message for queue.
	Clear(queue string) error

	// Close releases the broker's underlying connection, if any.
	Close() error
}

// QueueKey returns the Redis key for queue's visible set. The {queue} hash
// tag keeps all of a queue's keys on the same Redis Cluster shard, the way
// the teacher's QueueKeyPrefix keeps a queue's keys co-located under
// "asynq:{qname}:".
func QueueKey(queue string) string {
	return "ltq:{" + queue + "}:queue"
}

// ProcessingKey returns the Redis key for the in-flight set a given
// worker holds on queue.
func ProcessingKey(queue, workerID string) string {
	return "ltq:{" + queue + "}:processing:" + workerID
}

// ProcessingKeyPattern returns a glob pattern matching every worker's
// in-flight set for queue, used by Recover to scan across worker IDs.
func ProcessingKeyPattern(queue string) string {
	return "ltq:{" + queue + "}:processing:*"
}
