// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package ltq

import (
	"time"

	"github.com/google/uuid"
	"github.com/tclesius/ltq/internal/base"
)

// Message is a unit of work: task identity, arguments, and the per-attempt
// context middleware uses to carry state across retries (spec §3).
//
// Message is a type alias of base.Message: the broker implementations in
// package broker depend only on package base, never on this root package,
// which is what keeps BrokerFromURL (in broker.go) from creating an import
// cycle.
type Message = base.Message

// NewMessage builds a Message for taskName with the given args and kwargs.
// ID is freshly generated and CreatedAt is set to now; Ctx starts empty.
// This is the Go equivalent of original_source/src/ltq/message.py's
// Message dataclass defaults.
func NewMessage(taskName string, args []any, kwargs map[string]any) *Message {
	if kwargs == nil {
		kwargs = make(map[string]any)
	}
	if args == nil {
		args = []any{}
	}
	return &Message{
		ID:        uuid.NewString(),
		TaskName:  taskName,
		Args:      args,
		Kwargs:    kwargs,
		Ctx:       make(map[string]any),
		CreatedAt: time.Now(),
	}
}
