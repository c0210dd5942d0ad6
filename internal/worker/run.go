package worker

import (
	"context"
	"time"

	"framecast/internal/pkg/logger"
	"framecast/internal/worker/processor"
)

const (
	defaultPopTimeout = 30 * time.Second
	popRetryDelay     = time.Second
)

// Queue hands out render ids; Pop returns "" when nothing arrived in time.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

type runner struct {
	queue      Queue
	proc       *processor.Processor
	popTimeout time.Duration
	jobTimeout time.Duration
	log        *logger.Logger

	done, failed int
}

// Run processes queued renders one at a time until ctx is canceled.
// A render in flight when ctx ends is canceled and marked FAILED.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	r := &runner{
		queue:      d.Queue,
		popTimeout: d.PopTimeout,
		jobTimeout: d.JobTimeout,
		log:        log,
		proc: processor.New(processor.Deps{
			Store:        d.Store,
			Renderer:     d.Renderer,
			StorageRoot:  d.StorageRoot,
			CleanupLocal: d.CleanupLocal,
			SP:           d.SP,
			Log:          log,
		}),
	}
	if r.popTimeout <= 0 {
		r.popTimeout = defaultPopTimeout
	}

	for {
		renderID, err := r.next(ctx)
		if err != nil {
			log.Info("worker stopping", "done", r.done, "failed", r.failed, "cause", err.Error())
			return err
		}
		if renderID != "" {
			r.handle(ctx, renderID)
		}
	}
}

// next blocks for the next render id. It returns an error only once ctx ends;
// queue failures are logged and retried.
func (r *runner) next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		// Give the pop a little longer than the server side timeout.
		popCtx, cancel := context.WithTimeout(ctx, r.popTimeout+5*time.Second)
		renderID, err := r.queue.Pop(popCtx, r.popTimeout)
		cancel()
		if err == nil {
			return renderID, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		r.log.Warn("queue pop error, retrying", "error", err.Error())
		select {
		case <-time.After(popRetryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *runner) handle(ctx context.Context, renderID string) {
	ctx = logger.ContextWithRenderID(ctx, renderID)
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}
	log := r.log.FromContext(ctx)

	log.Info("processing render")
	started := time.Now()
	if err := r.proc.ProcessJob(ctx, renderID); err != nil {
		r.failed++
		log.Error("render failed", "error", err.Error(), "duration_ms", time.Since(started).Milliseconds())
		return
	}
	r.done++
	log.Info("render completed", "duration_ms", time.Since(started).Milliseconds())
}
