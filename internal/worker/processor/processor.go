package processor

import (
	"context"
	"path/filepath"
	"time"

	"framecast/internal/models"
	"framecast/internal/pkg/errors"
	"framecast/internal/pkg/logger"
	"framecast/internal/ports"
	"framecast/internal/render"
)

// maxErrorText bounds the error stored on a failed render.
const maxErrorText = 2000

// Store is the part of the render repository the processor needs.
type Store interface {
	ArtifactStore
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorText string) error
}

type Deps struct {
	Store        Store
	Renderer     Renderer
	StorageRoot  string
	CleanupLocal bool
	SP           ports.StorageProvider
	Log          *logger.Logger
}

type Processor struct {
	store       Store
	storageRoot string
	log         *logger.Logger

	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	return &Processor{
		store:           d.Store,
		storageRoot:     d.StorageRoot,
		log:             log,
		rendererAdapter: NewRendererAdapter(d.Renderer, log),
		outputHandler:   NewOutputHandler(d.Store, d.SP),
		cleanup:         NewCleanup(d.StorageRoot, d.CleanupLocal, d.SP, log),
	}
}

// ProcessJob runs one render job from QUEUED to DONE or FAILED.
func (p *Processor) ProcessJob(ctx context.Context, renderID string) error {
	ctx = logger.ContextWithRenderID(ctx, renderID)
	log := p.log.FromContext(ctx)

	// 1. Load and validate the job
	log.Debug("fetching render job")
	job, err := p.store.Get(ctx, renderID)
	if err != nil {
		return p.failJob(ctx, renderID, errors.Wrap(err, "processor.fetch", "failed to fetch render job"))
	}

	spec := job.Spec
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return p.failJob(ctx, renderID, err)
	}

	// 2. Mark running
	if err := p.store.MarkRunning(ctx, renderID); err != nil {
		return p.failJob(ctx, renderID, errors.Wrap(err, "processor.status", "failed to mark render as running"))
	}

	// 3. Render into the local storage tree
	objectKey := ObjectKey(renderID, spec.OutputName)
	localPath := filepath.Join(p.storageRoot, filepath.FromSlash(objectKey))
	log.Info("starting render",
		"composition", spec.CompositionID,
		"bundle", spec.BundlePath,
		"object_key", objectKey,
	)

	res, err := p.rendererAdapter.Render(ctx, RenderRequest{
		RenderID:   renderID,
		Spec:       spec,
		OutputPath: localPath,
	})
	if err != nil {
		p.cleanup.Discard(renderID, localPath)
		return p.failJob(ctx, renderID, render.AsAppError(err))
	}
	log.Debug("render completed", "frames", res.Artifact.Frames, "elapsed_ms", res.Elapsed.Milliseconds())

	// 4. Upload and register the artifact
	art, err := p.outputHandler.RegisterOutput(ctx, RegisterOutputRequest{
		RenderID:  renderID,
		ObjectKey: objectKey,
		LocalPath: localPath,
		Result:    res,
	})
	if err != nil {
		return p.failJob(ctx, renderID, errors.Wrap(err, "processor.outputs", "failed to register artifact"))
	}
	log.Debug("artifact registered", "artifact_id", art.ID, "provider", art.Provider, "size_bytes", art.SizeBytes)

	// 5. Cleanup
	p.cleanup.CleanupRender(renderID, localPath)

	// 6. Mark done
	return p.store.MarkDone(ctx, renderID)
}

func (p *Processor) failJob(ctx context.Context, renderID string, cause error) error {
	log := p.log.FromContext(ctx)

	msg := ""
	if cause != nil {
		msg = truncate(cause.Error(), maxErrorText)

		var appErr *errors.Error
		if errors.As(cause, &appErr) {
			log.WithFields(appErr.Fields).Error("render job failed",
				"code", string(appErr.Code),
				"op", appErr.Op,
				"message", appErr.Message,
			)
		} else {
			log.Error("render job failed", "error", msg)
		}
	}

	// Record the failure even when the job's own context was canceled.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.MarkFailed(markCtx, renderID, msg); err != nil {
		log.Warn("failed to mark render as failed", "error", err.Error())
	}

	return cause
}
