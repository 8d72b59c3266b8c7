// Package mailer moves outbound email off the request path through an asynq queue.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-pos/internal/common"
)

// TypeSendEmail is the asynq task type for outbound email.
const TypeSendEmail = "email:send"

// Enqueuer is the subset of *asynq.Client used by Queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueConfig configures Queue.
type QueueConfig struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// Queue enqueues email tasks.
type Queue struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

// NewQueue constructs a Queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Client == nil {
		return nil, errors.New("mailer: asynq client is required")
	}
	q := &Queue{client: cfg.Client, queue: cfg.Queue, maxRetry: cfg.MaxRetry, timeout: cfg.Timeout}
	if q.queue == "" {
		q.queue = "mail"
	}
	if q.maxRetry <= 0 {
		q.maxRetry = 5
	}
	if q.timeout <= 0 {
		q.timeout = 30 * time.Second
	}
	return q, nil
}

// NewSendEmailTask builds the task carrying email.
func NewSendEmailTask(email common.Email) (*asynq.Task, error) {
	if strings.TrimSpace(email.To) == "" {
		return nil, errors.New("mailer: recipient is required")
	}
	payload, err := json.Marshal(email)
	if err != nil {
		return nil, fmt.Errorf("encode email task: %w", err)
	}
	return asynq.NewTask(TypeSendEmail, payload), nil
}

// Enqueue schedules email for delivery by the worker.
func (q *Queue) Enqueue(ctx context.Context, email common.Email) error {
	task, err := NewSendEmailTask(email)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(q.timeout),
	); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}
