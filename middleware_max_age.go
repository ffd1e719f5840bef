package ltq

import (
	"context"
	"fmt"
	"time"

	"github.com/tclesius/ltq/internal/errors"
)

// MaxAgeMiddleware rejects a message before it runs once it has been
// waiting longer than task.Options.MaxAge (spec §4.3, "MaxAge"; invariant
// 5 in §8: "now − M.created_at ≤ max_age whenever the task body of M is
// entered").
type MaxAgeMiddleware struct{}

func (MaxAgeMiddleware) Handle(ctx context.Context, msg *Message, task *Task, next Next) error {
	if task.Options.MaxAge > 0 {
		age := time.Since(msg.CreatedAt)
		if age > task.Options.MaxAge {
			return errors.Reject(fmt.Sprintf("message %s too old (%s > %s)", msg.ID, age, task.Options.MaxAge))
		}
	}
	return next()
}
