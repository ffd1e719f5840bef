package ltq

import "context"

// Next invokes the next layer of the middleware pipeline, or the task body
// if the caller is the innermost middleware (spec §4.3).
type Next func() error

// Middleware is a scoped wrapper around the execution of one Message: it
// runs before and after the inner layer, which it invokes itself by
// calling next (spec §4.3, "[MIDDLEWARE]"). This is the Go rendering of
// the design note's "function run(message, task, inner) → result" form
// (spec §9): enter is everything before next(), exit is everything after,
// and returning before calling next short-circuits every layer inside it.
type Middleware interface {
	Handle(ctx context.Context, msg *Message, task *Task, next Next) error
}

// MiddlewareFunc adapts an ordinary function to Middleware.
type MiddlewareFunc func(ctx context.Context, msg *Message, task *Task, next Next) error

func (f MiddlewareFunc) Handle(ctx context.Context, msg *Message, task *Task, next Next) error {
	return f(ctx, msg, task, next)
}

// runPipeline nests mws around body in registration order: mws[0] is
// outermost and entered first, body runs innermost, and exit order is the
// reverse (spec §4.3, "Entry order is M1,…,Mn; exit order is Mn,…,M1").
func runPipeline(ctx context.Context, msg *Message, task *Task, mws []Middleware, body func() error) error {
	next := body
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := next
		next = func() error { return mw.Handle(ctx, msg, task, inner) }
	}
	return next()
}
