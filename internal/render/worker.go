package render

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"framecast/internal/composition"
	"framecast/internal/frame"
	"framecast/internal/pkg/logger"
	"framecast/internal/surface"
)

// page is what a surface must load before it accepts commands.
type page struct {
	url    string
	script string
}

// worker drives one surface through one sub-range.
type worker struct {
	id       int
	r        frame.Range
	desc     composition.Descriptor
	page     page
	launcher surface.Launcher
	cfg      Config
	out      chan<- frame.Captured
	log      *logger.Logger

	produced atomic.Uint32
}

func (w *worker) run(ctx context.Context) (err error) {
	start := time.Now()
	w.log.Info("worker starting", "range", w.r.String(), "frames", w.r.Len())

	defer func() {
		if err != nil {
			err = &workerError{worker: w.id, r: w.r, produced: w.produced.Load(), err: err}
			w.log.Error("worker failed", "produced", w.produced.Load(), "error", err.Error())
			return
		}
		w.log.Info("worker finished", "frames", w.produced.Load(), "duration_ms", time.Since(start).Milliseconds())
	}()

	s, err := openSurface(ctx, w.launcher, surface.Viewport{Width: w.desc.Width, Height: w.desc.Height}, w.page, w.cfg.PageLoadTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			w.log.Warn("surface close failed", "error", cerr.Error())
		}
	}()

	if err := w.prepare(ctx, s); err != nil {
		return err
	}

	for i := w.r.Start; i < w.r.End; i++ {
		f, err := w.captureWithRetry(ctx, s, i)
		if err != nil {
			return err
		}
		select {
		case w.out <- f:
			w.produced.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// prepare puts the surface into composition mode.
func (w *worker) prepare(ctx context.Context, s surface.Surface) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.PageLoadTimeout)
	defer cancel()

	_, err := surface.Run(ctx, s, composition.SetComposition(w.desc))
	return err
}

func (w *worker) captureWithRetry(ctx context.Context, s surface.Surface, index uint32) (frame.Captured, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.FrameRetries; attempt++ {
		f, err := w.capture(ctx, s, index)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return frame.Captured{}, err
		}
		lastErr = err
		if attempt < w.cfg.FrameRetries {
			w.log.Warn("frame capture failed, retrying", "frame", index, "attempt", attempt+1, "error", err.Error())
		}
	}
	return frame.Captured{}, fmt.Errorf("frame %d: %w", index, lastErr)
}

func (w *worker) capture(ctx context.Context, s surface.Surface, index uint32) (frame.Captured, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.FrameTimeout)
	defer cancel()

	if _, err := surface.Run(ctx, s, composition.SetFrame(index, w.desc.ID)); err != nil {
		return frame.Captured{}, err
	}
	if _, err := surface.Run(ctx, s, composition.PaintComplete()); err != nil {
		return frame.Captured{}, err
	}
	raster, err := s.Capture(ctx)
	if err != nil {
		return frame.Captured{}, surface.Wrap(surface.OpCapture, err)
	}
	if raster.Width != w.desc.Width || raster.Height != w.desc.Height {
		return frame.Captured{}, &surface.Error{
			Op:  surface.OpCapture,
			Err: fmt.Errorf("raster is %dx%d, want %dx%d", raster.Width, raster.Height, w.desc.Width, w.desc.Height),
		}
	}

	w.log.Debug("frame captured", "frame", index)
	return frame.Captured{
		Index:  index,
		Pixels: raster.Pixels,
		Format: raster.Format,
		Width:  raster.Width,
		Height: raster.Height,
	}, nil
}

// openSurface launches a surface and loads the bundle into it, closing the
// surface again if loading fails.
func openSurface(ctx context.Context, l surface.Launcher, vp surface.Viewport, p page, timeout time.Duration) (surface.Surface, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := l.Launch(ctx, vp)
	if err != nil {
		return nil, surface.Wrap(surface.OpLaunch, err)
	}
	if err := load(ctx, s, p); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func load(ctx context.Context, s surface.Surface, p page) error {
	if err := s.Navigate(ctx, p.url); err != nil {
		return surface.Wrap(surface.OpNavigate, err)
	}
	if err := s.WaitLoaded(ctx); err != nil {
		return surface.Wrap(surface.OpLoad, err)
	}
	if p.script != "" {
		if _, err := s.Evaluate(ctx, p.script, true); err != nil {
			return &surface.Error{Op: surface.OpEvaluate, Command: "inject_bundle", Err: err}
		}
	}
	_, err := surface.Run(ctx, s, composition.BundleReady())
	return err
}
