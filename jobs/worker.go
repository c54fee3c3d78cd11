package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultConcurrency     = 5
	defaultShutdownTimeout = 10 * time.Second
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts       asynq.RedisClientOpt
	Logger          *slog.Logger
	Concurrency     int
	ShutdownTimeout time.Duration
	Handlers        []TaskHandler
	Cron            []CronRegistration
}

// NewWorker constructs a Worker. Audit writes are weighted over the default queue.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueueAudit: 3, QueueDefault: 1},
		ShutdownTimeout: shutdown,
		Logger:          slogAdapter{logger: logger},
		LogLevel:        asynq.WarnLevel,
		ErrorHandler:    asynq.ErrorHandlerFunc(taskFailureLogger(logger)),
	})

	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("worker: incomplete handler for %q", h.Type)
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   slogAdapter{logger: logger},
			LogLevel: asynq.WarnLevel,
		})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("worker: register %s: %w", entry.Task.Type(), err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	w.logger.Info("worker started")

	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func taskFailureLogger(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		level := slog.LevelWarn
		if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "task failed",
			slog.String("type", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err))
	}
}

// slogAdapter routes asynq's internal logging through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

// Fatal logs at error level; asynq exits the process afterwards.
func (a slogAdapter) Fatal(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
