// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opentrusty/civicguard/internal/observability/logger"
)

const (
	// QueueNotifications is the queue notification tasks are placed on.
	QueueNotifications = "notifications"
	// TaskTypeDeliver is the task type for notification delivery.
	TaskTypeDeliver = "notification:deliver"
)

// Enqueuer is the slice of asynq.Client used by AsynqSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewDeliverTask constructs a delivery task for n.
func NewDeliverTask(n Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliver, data), nil
}

// AsynqSink hands notifications to the background worker.
type AsynqSink struct {
	client   Enqueuer
	maxRetry int
}

// NewAsynqSink creates a queueing sink.
func NewAsynqSink(client Enqueuer, maxRetry int) *AsynqSink {
	return &AsynqSink{client: client, maxRetry: maxRetry}
}

func (s *AsynqSink) Send(ctx context.Context, n Notification) error {
	task, err := NewDeliverTask(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// DeliverHandler processes TaskTypeDeliver tasks by sending them on a
// downstream sink.
type DeliverHandler struct {
	sink Sink
}

// NewDeliverHandler creates a task handler delivering to sink.
func NewDeliverHandler(sink Sink) *DeliverHandler {
	return &DeliverHandler{sink: sink}
}

// Handle executes one delivery. Undecodable payloads are not retried.
func (h *DeliverHandler) Handle(ctx context.Context, t *asynq.Task) error {
	if h == nil || h.sink == nil {
		return errors.New("notification deliver: handler not configured")
	}
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		slog.ErrorContext(ctx, "undecodable notification task", logger.Error(err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if n.UserID == "" || n.Type == "" {
		return fmt.Errorf("%w: notification without recipient or type", asynq.SkipRetry)
	}
	return h.sink.Send(ctx, n)
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Concurrency int
	Handler     *DeliverHandler
}

// Worker wraps the asynq server consuming notification tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueNotifications: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDeliver, cfg.Handler.Handle)
	return &Worker{server: srv, mux: mux}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
