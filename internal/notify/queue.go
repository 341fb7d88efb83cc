// Package notify provides the asynchronous fire-and-forget task queue used
// for notification dispatch and relationship-service side effects. Submission
// never blocks the calling operation and failures are logged, not propagated.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// Task is a unit of background work with a label for logging.
type Task struct {
	Label string
	Run   func(ctx context.Context) error
}

// Queue runs submitted tasks on a single worker goroutine with a bounded
// buffer. When the buffer is full the task is dropped and logged; callers are
// never blocked or failed by notification problems.
type Queue struct {
	tasks      chan Task
	logger     zerolog.Logger
	timeout    time.Duration
	stopChan   chan struct{}
	doneChan   chan struct{}
	dispatcher domain.NotificationDispatcher
}

func NewQueue(dispatcher domain.NotificationDispatcher, buffer int, timeout time.Duration, logger zerolog.Logger) *Queue {
	if buffer <= 0 {
		buffer = 256
	}
	return &Queue{
		tasks:      make(chan Task, buffer),
		logger:     logger.With().Str("component", "notify-queue").Logger(),
		timeout:    timeout,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		dispatcher: dispatcher,
	}
}

// Start runs the worker loop. Call with 'go'.
func (q *Queue) Start() {
	defer close(q.doneChan)
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		case <-q.stopChan:
			// Drain what is already buffered before exiting.
			for {
				select {
				case task := <-q.tasks:
					q.run(task)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the worker to drain and exit, waiting up to a second.
func (q *Queue) Stop() {
	close(q.stopChan)
	select {
	case <-q.doneChan:
	case <-time.After(time.Second):
	}
}

func (q *Queue) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := task.Run(ctx); err != nil {
		q.logger.Warn().Err(err).Str("task", task.Label).Msg("background task failed")
	}
}

// Submit enqueues a task, dropping it when the buffer is full.
func (q *Queue) Submit(task Task) {
	select {
	case q.tasks <- task:
	default:
		q.logger.Warn().Str("task", task.Label).Msg("notify queue full, task dropped")
	}
}

// Notify enqueues a single notification send.
func (q *Queue) Notify(n domain.Notification) {
	q.Submit(Task{
		Label: "notification:" + n.Type,
		Run: func(ctx context.Context) error {
			return q.dispatcher.Send(ctx, n)
		},
	})
}

// NotifyBulk enqueues a bulk notification send.
func (q *Queue) NotifyBulk(ns []domain.Notification) {
	if len(ns) == 0 {
		return
	}
	q.Submit(Task{
		Label: "notification:bulk",
		Run: func(ctx context.Context) error {
			return q.dispatcher.SendBulk(ctx, ns)
		},
	})
}
