package ltq

import (
	"context"
	"fmt"

	"github.com/tclesius/ltq/internal/errors"
)

// MaxTriesMiddleware rejects a message before it runs once it has already
// been attempted task.Options.MaxTries times, and otherwise bumps the try
// counter in msg.Ctx whenever the inner layers return an error (spec
// §4.3, "MaxTries").
//
// It is grounded on original_source/src/ltq/middleware.py's MaxTries:
// tries are not incremented when the failure was itself a rate-limit retry
// (ctx["rate_limited"]), so a task waiting on MaxRate does not burn down
// its retry budget.
type MaxTriesMiddleware struct{}

func (MaxTriesMiddleware) Handle(ctx context.Context, msg *Message, task *Task, next Next) error {
	maxTries := task.Options.MaxTries
	if maxTries > 0 {
		tries := Ctx(msg.Ctx).Int("tries", 0)
		if tries >= maxTries {
			return errors.Reject(fmt.Sprintf("message %s exceeded max tries (%d)", msg.ID, maxTries))
		}
	}

	err := next()
	if err != nil {
		rateLimited := Ctx(msg.Ctx).Bool("rate_limited", false)
		delete(msg.Ctx, "rate_limited")
		if !rateLimited {
			msg.Ctx["tries"] = Ctx(msg.Ctx).Int("tries", 0) + 1
		}
	}
	return err
}
