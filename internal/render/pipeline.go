// Package render runs the capture pipeline: it probes the composition,
// splits the frame range over capture workers, resequences their frames and
// feeds them to an encoder.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"framecast/internal/bundle"
	"framecast/internal/composition"
	"framecast/internal/encoder"
	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/pkg/logger"
	"framecast/internal/surface"
)

// Renderer renders compositions with one launcher and one encoder tool.
// It is safe for concurrent use; every render gets its own surfaces.
type Renderer struct {
	cfg      Config
	launcher surface.Launcher
	tool     encoder.Tool
	log      *logger.Logger
}

// New returns a Renderer. Zero timeouts in cfg take their defaults.
func New(cfg Config, launcher surface.Launcher, tool encoder.Tool, log *logger.Logger) *Renderer {
	if log == nil {
		log = logger.Discard()
	}
	return &Renderer{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		tool:     tool,
		log:      log.WithComponent("render"),
	}
}

// Render produces the video described by opts. On failure it returns a
// *Error naming the failed stage, and no output file is left behind.
func (r *Renderer) Render(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	log := r.log.FromContext(ctx)

	if err := opts.validate(); err != nil {
		return nil, &Error{Stage: StageConfig, Err: err}
	}
	b, err := bundle.Open(opts.BundlePath, r.cfg.InjectScript)
	if err != nil {
		return nil, &Error{Stage: StageConfig, Err: err}
	}

	pg := page{url: b.IndexURL(), script: b.Script}
	if r.cfg.ServeBundle {
		srv, err := bundle.Serve(b, log)
		if err != nil {
			return nil, &Error{Stage: StageConfig, Err: apperr.WrapWithCode(err, apperr.CodeConfig, "render.serve", "serve bundle")}
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Close(closeCtx)
		}()
		pg.url = srv.IndexURL()
	}

	desc, err := r.probe(ctx, pg, opts.CompositionID)
	if err != nil {
		stage := StageProbe
		if apperr.IsConfig(err) {
			stage = StageConfig
		}
		return nil, &Error{Stage: stage, Err: err}
	}
	if desc, err = desc.WithProps(opts.Props); err != nil {
		return nil, &Error{Stage: StageConfig, Err: err}
	}
	rng, err := ResolveRange(opts.Frames, desc.TotalFrames)
	if err != nil {
		return nil, &Error{Stage: StageConfig, Err: err}
	}

	parts := Partition(rng, r.cfg.workers(opts.Workers))
	log.Info("render starting",
		"composition", desc.ID,
		"size", fmt.Sprintf("%dx%d", desc.Width, desc.Height),
		"fps", desc.FPS,
		"range", rng.String(),
		"workers", len(parts),
		"encoder", string(r.cfg.Encoder),
	)

	enc, err := encoder.New(ctx, encoder.Params{
		Width:  desc.Width,
		Height: desc.Height,
		FPS:    desc.FPS,
		Start:  rng.Start,
		Output: opts.OutputPath,
	}, encoder.Options{
		Strategy:   r.cfg.Encoder,
		Tool:       r.tool,
		ScratchDir: r.scratchDir(),
		Log:        log,
	})
	if err != nil {
		return nil, &Error{Stage: StageEncode, Err: err}
	}

	active, err := r.capture(ctx, desc, rng, parts, pg, enc, opts.OnProgress)
	if err != nil {
		_ = enc.Abort()
		log.Error("render failed", "error", err.Error())
		return nil, err
	}

	art, err := enc.Finish(ctx)
	if err != nil {
		_ = enc.Abort()
		return nil, &Error{Stage: StageEncode, Err: err}
	}

	res := &Result{
		Artifact:    art,
		Composition: desc,
		Range:       rng,
		Workers:     active,
		Elapsed:     time.Since(started),
	}
	log.Info("render finished",
		"output", art.Path,
		"frames", art.Frames,
		"duration", art.Duration.String(),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// probe reads the composition list from a dedicated surface.
func (r *Renderer) probe(ctx context.Context, pg page, id string) (composition.Descriptor, error) {
	s, err := openSurface(ctx, r.launcher, r.cfg.ProbeViewport, pg, r.cfg.PageLoadTimeout)
	if err != nil {
		return composition.Descriptor{}, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			r.log.FromContext(ctx).Warn("probe surface close failed", "error", cerr.Error())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.PageLoadTimeout)
	defer cancel()

	if _, err := surface.Run(ctx, s, composition.EvaluationMode()); err != nil {
		return composition.Descriptor{}, err
	}
	raw, err := surface.Run(ctx, s, composition.QueryCompositions())
	if err != nil {
		return composition.Descriptor{}, err
	}
	list, err := composition.ParseList(raw)
	if err != nil {
		return composition.Descriptor{}, &surface.Error{Op: surface.OpEvaluate, Command: composition.CmdQuery, Err: err}
	}
	desc, err := composition.Find(list, id)
	if err != nil {
		return composition.Descriptor{}, err
	}
	return desc, desc.Validate()
}

// capture runs the workers and consumes their frames on this goroutine. It
// returns the number of workers started.
func (r *Renderer) capture(
	ctx context.Context,
	desc composition.Descriptor,
	rng frame.Range,
	parts []frame.Range,
	pg page,
	enc encoder.Adapter,
	onProgress func(Progress),
) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := make([]*worker, 0, len(parts))
	for i, p := range parts {
		if p.Empty() {
			continue
		}
		workers = append(workers, &worker{
			id:       i,
			r:        p,
			desc:     desc,
			page:     pg,
			launcher: r.launcher,
			cfg:      r.cfg,
			log:      r.log.FromContext(ctx).WithWorker(i),
		})
	}

	frames := make(chan frame.Captured, 2*len(workers))
	var (
		mu         sync.Mutex
		workerErrs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w // per-iteration copy; go.mod targets go1.21 loop semantics
		w.out = frames
		g.Go(func() error {
			err := w.run(gctx)
			if err != nil {
				mu.Lock()
				workerErrs = append(workerErrs, err)
				mu.Unlock()
			}
			return err
		})
	}
	go func() {
		_ = g.Wait()
		close(frames)
	}()

	progress := Progress{Total: rng.Len()}
	sink := NewSink(rng, ingestFunc(func(f frame.Captured) error {
		if err := enc.Ingest(f); err != nil {
			return err
		}
		progress.Encoded++
		return nil
	}))

	var consumeErr error
	for f := range frames {
		if consumeErr != nil {
			continue
		}
		progress.Captured++
		if err := sink.Push(f); err != nil {
			consumeErr = err
			cancel()
			continue
		}
		if onProgress != nil {
			onProgress(progress)
		}
	}

	mu.Lock()
	errs := workerErrs
	mu.Unlock()

	switch {
	case consumeErr != nil:
		stage := StageEncode
		var oe *OrderingError
		if errors.As(consumeErr, &oe) {
			stage = StageOrdering
		}
		return len(workers), &Error{Stage: stage, Missing: sink.Missing(), Err: consumeErr}
	case len(errs) > 0:
		return len(workers), &Error{Stage: StageCapture, Missing: sink.Missing(), Err: errors.Join(rootCauses(errs)...)}
	}

	if err := sink.Finalize(); err != nil {
		return len(workers), &Error{Stage: StageOrdering, Missing: sink.Missing(), Err: err}
	}
	return len(workers), nil
}

func (r *Renderer) scratchDir() string {
	if r.cfg.Encoder != encoder.StrategyBatch {
		return ""
	}
	root := r.cfg.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	return filepath.Join(root, "framecast-frames-"+uuid.NewString())
}

type ingestFunc func(f frame.Captured) error

func (fn ingestFunc) Ingest(f frame.Captured) error { return fn(f) }
