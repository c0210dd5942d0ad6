package processor

import (
	"context"

	v1 "framecast/internal/contracts/render/v1"
	"framecast/internal/pkg/logger"
	"framecast/internal/render"
)

// Renderer is the capture pipeline as the processor sees it.
type Renderer interface {
	Render(ctx context.Context, opts render.Options) (*render.Result, error)
}

type RendererAdapter struct {
	r   Renderer
	log *logger.Logger
}

func NewRendererAdapter(r Renderer, log *logger.Logger) *RendererAdapter {
	return &RendererAdapter{r: r, log: log}
}

type RenderRequest struct {
	RenderID   string
	Spec       v1.JobSpec
	OutputPath string
}

// Render maps a job spec onto pipeline options and logs progress in tenths.
func (ra *RendererAdapter) Render(ctx context.Context, req RenderRequest) (*render.Result, error) {
	log := ra.log.FromContext(ctx)

	var lastTenth uint32
	opts := render.Options{
		BundlePath:    req.Spec.BundlePath,
		OutputPath:    req.OutputPath,
		CompositionID: req.Spec.CompositionID,
		Props:         req.Spec.Props,
		Frames:        req.Spec.Frames.Range(),
		Workers:       req.Spec.Workers,
		OnProgress: func(p render.Progress) {
			if p.Total == 0 {
				return
			}
			tenth := p.Encoded * 10 / p.Total
			if tenth > lastTenth {
				lastTenth = tenth
				log.Info("render progress", "encoded", p.Encoded, "total", p.Total, "percent", tenth*10)
			}
		},
	}
	return ra.r.Render(ctx, opts)
}
