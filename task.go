// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package ltq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tclesius/ltq/internal/errors"
)

// HandlerFunc is the body of a task: the callable bound to a Task (spec
// §3, "[TASK]: binding of (function, options, owning worker, task_name,
// queue_name)").
type HandlerFunc func(ctx context.Context, msg *Message) error

// TaskOptions is per-task configuration, immutable after registration
// (spec §3, "[TASKOPTIONS]").
type TaskOptions struct {
	// MaxTries is the maximum number of times a message for this task may
	// be executed. Zero means unlimited.
	MaxTries int

	// MaxAge rejects a message outright once it has been waiting longer
	// than this. Zero means no limit.
	MaxAge time.Duration

	// MaxRate is a string of the form "N/u" (u in {s, m, h}) bounding how
	// often this task may complete on a single Worker. Empty means
	// unlimited.
	MaxRate string
}

func (o TaskOptions) validate() error {
	if o.MaxTries < 0 {
		return errors.E(errors.InvalidArgument, "max_tries must be >= 0")
	}
	if o.MaxRate != "" {
		if _, err := parseRate(o.MaxRate); err != nil {
			return err
		}
	}
	return nil
}

// Task binds a HandlerFunc to a queue with a set of options. A Task is
// owned by exactly one Worker (spec §3, "Ownership").
type Task struct {
	// Name is the task_name, "{queue}:{function}", where queue is
	// QueueName: the Worker's name, or the explicit shared queue the task
	// was registered with (spec §4.2).
	Name string

	// QueueName is the queue this task's messages are published to and
	// consumed from.
	QueueName string

	// Options is this task's immutable configuration.
	Options TaskOptions

	// Fn is the callable invoked for each message.
	Fn HandlerFunc

	worker *Worker
}

// Message builds a Message for this task without publishing it (spec
// §4.2, "message(*args, **kwargs) → Message"), e.g. a prototype Message
// for the Scheduler. Send and SendIn build their messages with it.
func (t *Task) Message(args []any, kwargs map[string]any) (*Message, error) {
	if err := validateSerializable(args, kwargs); err != nil {
		return nil, err
	}
	return NewMessage(t.Name, args, kwargs), nil
}

// Send builds a Message and publishes it to this task's queue with zero
// delay (spec §4.2, "send(*args, **kwargs)"). It returns nothing on the
// happy path, matching the original's "producers never see a result"
// design (spec §7); the error return reports the synchronous
// serialization failure spec §4.2 and §7 call out, or a failed publish
// to the broker.
func (t *Task) Send(ctx context.Context, args []any, kwargs map[string]any) error {
	msg, err := t.Message(args, kwargs)
	if err != nil {
		return err
	}
	return t.worker.broker.Publish(t.QueueName, msg, 0)
}

// SendIn builds a Message and publishes it to this task's queue, visible
// only after delay has elapsed.
func (t *Task) SendIn(ctx context.Context, delay time.Duration, args []any, kwargs map[string]any) error {
	msg, err := t.Message(args, kwargs)
	if err != nil {
		return err
	}
	return t.worker.broker.Publish(t.QueueName, msg, delay)
}

// validateSerializable fails fast, before anything is enqueued, if args or
// kwargs contain a value the JSON encoder cannot handle (spec §4.2,
// "Argument encoding ... unserializable values fail locally with a
// well-defined error before anything is enqueued").
func validateSerializable(args []any, kwargs map[string]any) error {
	if _, err := json.Marshal(args); err != nil {
		return errors.E(errors.InvalidArgument, fmt.Sprintf("args not serializable: %v", err), err)
	}
	if _, err := json.Marshal(kwargs); err != nil {
		return errors.E(errors.InvalidArgument, fmt.Sprintf("kwargs not serializable: %v", err), err)
	}
	return nil
}
