// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

/*
Package ltq provides a lightweight distributed task queue backed by Redis.

LTQ gives at-least-once delivery via lease-based task ownership and
automatic recovery, delayed/scheduled tasks, per-task retry and rate
limiting, and a small composable middleware pipeline. It has no priority
queues, no result storage, and no completed-task retention: a task either
succeeds, is retried, or is rejected.

# Quick Start

Producer (enqueue tasks):

	broker := ltq.NewRedisBroker(&redis.Options{Addr: "localhost:6379"})
	worker := ltq.NewWorker("emails", broker, ltq.WorkerConfig{})

	sendWelcome, _ := worker.Register("send_welcome", func(context.Context, *ltq.Message) error { return nil }, ltq.TaskOptions{MaxTries: 3})
	if err := sendWelcome.Send(ctx, []any{42}, nil); err != nil {
		log.Fatal(err)
	}

Worker (process tasks):

	worker := ltq.NewWorker("emails", broker, ltq.WorkerConfig{Concurrency: 10})
	worker.Register("send_welcome", func(ctx context.Context, msg *ltq.Message) error {
		log.Printf("sending welcome email to user %v", msg.Args[0])
		return nil
	}, ltq.TaskOptions{MaxTries: 3, MaxAge: time.Hour})

	if err := worker.Start(); err != nil {
		log.Fatal(err)
	}
	defer worker.Stop()

# Task Options

Available fields on TaskOptions:

	MaxTries  - reject a message once it has already been attempted this many times
	MaxAge    - reject a message once it has been waiting longer than this
	MaxRate   - "N/u" (u in {s, m, h}); bound how often this task completes per Worker

# Architecture

LTQ uses Redis sorted sets as the message broker: one visible set per
queue (ltq:{queue}:queue) plus one in-flight set per worker
(ltq:{queue}:processing:{worker_id}). Every state transition (publish,
consume, ack, nack, recover) runs as a single Lua script, so the move
between the visible and in-flight sets is never observable as two separate
steps.

A Worker owns one event loop per registered queue: lease one due message
at a time, run each message through the middleware pipeline and task body
under a bounded semaphore, then ack, retry-nack, or drop-nack depending on
the outcome. An App groups several Workers under one supervisor and one
shared middleware prefix. A Scheduler polls a list of cron entries and
publishes a fresh Message from a registered prototype whenever one is due.
*/
package ltq
