package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"framecast/internal/models"
	"framecast/internal/pkg/util"
	"framecast/internal/ports"
	"framecast/internal/render"
)

// ArtifactStore records uploaded artifacts.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, a *models.Artifact) error
}

// localPather is implemented by providers that keep objects on this host.
type localPather interface {
	Path(objectKey string) string
}

type OutputHandler struct {
	store ArtifactStore
	sp    ports.StorageProvider
}

func NewOutputHandler(store ArtifactStore, sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{store: store, sp: sp}
}

type RegisterOutputRequest struct {
	RenderID  string
	ObjectKey string
	LocalPath string
	Result    *render.Result
}

// RegisterOutput uploads the rendered file and records it as the render's artifact.
func (oh *OutputHandler) RegisterOutput(ctx context.Context, req RegisterOutputRequest) (*models.Artifact, error) {
	st, err := os.Stat(req.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("artifact file not found: %w", err)
	}

	mime := MimeFromName(req.LocalPath)
	objectKey, size, err := oh.upload(ctx, req.ObjectKey, req.LocalPath, mime, st.Size())
	if err != nil {
		return nil, err
	}

	a := &models.Artifact{
		ID:         util.NewID("art"),
		RenderID:   req.RenderID,
		Provider:   oh.sp.Provider(),
		ObjectKey:  objectKey,
		Mime:       mime,
		SizeBytes:  size,
		Frames:     req.Result.Artifact.Frames,
		FPS:        req.Result.Artifact.FPS,
		DurationMS: req.Result.Artifact.Duration.Milliseconds(),
	}
	if err := oh.store.InsertArtifact(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to register artifact in DB: %w", err)
	}
	return a, nil
}

func (oh *OutputHandler) upload(ctx context.Context, objectKey, localPath, mime string, size int64) (string, int64, error) {
	// The render already wrote into the provider's own tree.
	if lp, ok := oh.sp.(localPather); ok && samePath(lp.Path(objectKey), localPath) {
		return objectKey, size, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: mime,
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload artifact: %w", err)
	}
	return out.ObjectKey, out.Size, nil
}

func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	return errA == nil && errB == nil && aa == bb
}
