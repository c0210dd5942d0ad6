package handlers

import (
	"context"

	"framecast/internal/models"
	"framecast/internal/pkg/logger"
	"framecast/internal/ports"
)

// RenderStore is the render repository as the API sees it.
type RenderStore interface {
	Create(ctx context.Context, j *models.RenderJob) error
	List(ctx context.Context, status models.RenderStatus, limit int) ([]models.RenderJob, error)
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	MarkFailed(ctx context.Context, id, errorText string) error
}

// Enqueuer hands render ids to the workers.
type Enqueuer interface {
	Push(ctx context.Context, renderID string) error
}

// Check probes one dependency for the deep health report.
type Check func(ctx context.Context) map[string]any

type Deps struct {
	Renders RenderStore
	Queue   Enqueuer
	SP      ports.StorageProvider
	Checks  map[string]Check
	Version string
	Log     *logger.Logger
}

type Handler struct {
	renders RenderStore
	queue   Enqueuer
	sp      ports.StorageProvider
	checks  map[string]Check
	version string
	log     *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		renders: d.Renders,
		queue:   d.Queue,
		sp:      d.SP,
		checks:  d.Checks,
		version: d.Version,
		log:     log.WithComponent("api"),
	}
}
