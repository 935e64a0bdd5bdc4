// Package worker consumes document-run tasks from the redis stream and drives
// the orchestrator. Failed runs are retried up to MaxAttempts, then parked on
// the DLQ stream.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"prdsync.app/prdsync/common/llm"
	"prdsync.app/prdsync/common/logger"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/queue"
)

// RunProcessor is the orchestrator surface the worker needs. Defined here so
// tests can substitute a fake without touching the pipeline wiring.
type RunProcessor interface {
	ProcessDocument(ctx context.Context, path string, forceCreate bool) (model.RunSummary, error)
}

// TaskConsumer is the queue surface the worker needs, satisfied by
// queue.RedisConsumer.
type TaskConsumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer  TaskConsumer
	processor RunProcessor
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer TaskConsumer, processor RunProcessor, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "run processing failed",
				"error", err,
				"message_id", msg.ID,
				"run_id", msg.Task.RunID,
				"document", msg.Task.DocumentPath)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in run processing",
				"panic", r,
				"message_id", msg.ID,
				"run_id", msg.Task.RunID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one task to completion and acks it. Exported so it can
// be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.Task.TraceID, "worker.process_run",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		RunID:        logger.Ptr(msg.Task.RunID),
		DocumentPath: logger.Ptr(msg.Task.DocumentPath),
		Component:    "prdsync.worker",
	})

	slog.InfoContext(ctx, "processing run",
		"message_id", msg.ID,
		"attempt", msg.Task.Attempt,
		"force_create", msg.Task.ForceCreate)

	summary, err := w.processor.ProcessDocument(ctx, msg.Task.DocumentPath, msg.Task.ForceCreate)
	if err != nil {
		sc.RecordError(err)
		return fmt.Errorf("processing document: %w", err)
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// Message will be reclaimed; reprocessing an identical document is
		// idempotent so this is safe.
		slog.WarnContext(ctx, "failed to ACK message", "error", ackErr, "message_id", msg.ID)
	}

	slog.InfoContext(ctx, "run processed",
		"mode", summary.Mode,
		"updated", summary.Updated,
		"created", summary.Created,
		"unchanged", summary.Unchanged)
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if ctx.Err() != nil {
		// Shutdown mid-run: leave the message pending for the reclaimer.
		return
	}

	// Retrying a bad request or auth failure would just burn attempts.
	if !llm.IsRetryable(ctx, err) {
		slog.ErrorContext(ctx, "non-retryable error, sending to DLQ",
			"message_id", msg.ID,
			"run_id", msg.Task.RunID,
			"error", err)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if msg.Task.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"run_id", msg.Task.RunID,
			"attempts", msg.Task.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed run",
		"message_id", msg.ID,
		"run_id", msg.Task.RunID,
		"attempt", msg.Task.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
