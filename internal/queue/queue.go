// Package queue defines the task queue contract assumed by the pipeline:
// an at-least-once broker with visibility delays. Batch pacing relies on
// the delay primitive instead of sleeping worker threads, and task
// payloads are plain JSON so a continuation can be resumed by any worker
// instance.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Task is one unit of queued work.
type Task struct {
	// ID identifies the task across redeliveries.
	ID string `json:"id"`

	// Kind routes the task to its registered handler.
	Kind string `json:"kind"`

	// Payload is the handler-defined JSON body.
	Payload json.RawMessage `json:"payload"`

	// Attempt is the 1-based delivery attempt, set by the queue.
	Attempt int `json:"attempt"`

	// MaxAttempts bounds redeliveries; zero means a single attempt.
	MaxAttempts int `json:"maxAttempts"`
}

// Handler processes tasks of one kind. Returning an error requeues the
// task with backoff until its attempt budget is exhausted.
type Handler func(ctx context.Context, task *Task) error

// DeadLetterFunc receives tasks whose attempt budget is exhausted.
type DeadLetterFunc func(task *Task, err error)

// Queue is an at-least-once, delay-capable task queue.
type Queue interface {
	// Enqueue schedules a task. The task is stored immediately but stays
	// invisible to workers until the visibility delay elapses.
	Enqueue(ctx context.Context, task *Task, visibilityDelay time.Duration) error

	// Register installs the handler for a task kind. Must be called
	// before Start.
	Register(kind string, handler Handler)

	// Start runs the consumer workers until the context is cancelled.
	Start(ctx context.Context) error

	// Depth reports the number of tasks enqueued but not yet completed.
	Depth() int
}

// Marshal encodes a payload value into a task body.
func Marshal(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a task body into the handler's payload type.
func Unmarshal(task *Task, v any) error {
	return json.Unmarshal(task.Payload, v)
}
