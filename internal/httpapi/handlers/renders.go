package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	v1 "framecast/internal/contracts/render/v1"
	"framecast/internal/httpkit"
	"framecast/internal/models"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/pkg/util"
	"framecast/internal/repositories"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// PostRender stores a queued render and hands it to the workers.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var spec v1.JobSpec
	if err := httpkit.DecodeJSON(r, &spec); err != nil {
		return apperr.WrapWithCode(err, apperr.CodeValidation, "api.renders.create", "invalid json body")
	}
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return err
	}

	job := &models.RenderJob{
		ID:     util.NewID("rnd"),
		Status: models.StatusQueued,
		Spec:   spec,
	}
	if err := h.renders.Create(ctx, job); err != nil {
		return apperr.Wrap(err, "api.renders.create", "db insert failed")
	}
	if err := h.queue.Push(ctx, job.ID); err != nil {
		// No worker will pop the row, so it must not stay QUEUED.
		if merr := h.renders.MarkFailed(context.WithoutCancel(ctx), job.ID, "queue push failed: "+err.Error()); merr != nil {
			h.log.FromContext(ctx).Error("failed to mark unqueued render", "render_id", job.ID, "error", merr.Error())
		}
		return apperr.WrapWithCode(err, apperr.CodeUnavailable, "api.renders.create", "queue push failed")
	}

	h.log.FromContext(ctx).Info("render queued", "render_id", job.ID, "composition", spec.CompositionID)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"render": job})
	return nil
}

// ListRenders lists recent renders, optionally filtered by status.
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) error {
	status := models.RenderStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !status.Valid() {
		return apperr.ValidationField("status", "unknown status "+string(status))
	}

	limit := defaultListLimit
	if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}

	jobs, err := h.renders.List(r.Context(), status, limit)
	if err != nil {
		return apperr.Wrap(err, "api.renders.list", "db query failed")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"renders": jobs})
	return nil
}

// GetRender returns one render with its artifact.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"render": job})
	return nil
}

// StreamArtifact streams the rendered video from storage.
func (h *Handler) StreamArtifact(w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}
	if job.Artifact == nil {
		return apperr.NotFound("artifact", job.ID).WithField("status", string(job.Status))
	}

	rc, ct, size, err := h.sp.GetObject(r.Context(), job.Artifact.ObjectKey)
	if err != nil {
		return apperr.WrapWithCode(err, apperr.CodeNotFound, "api.renders.artifact", "artifact file missing").
			WithField("object_key", job.Artifact.ObjectKey)
	}
	defer rc.Close()

	if ct == "" {
		ct = job.Artifact.Mime
	}
	if size <= 0 {
		size = job.Artifact.SizeBytes
	}
	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Content-Disposition", `inline; filename="`+job.Spec.OutputName+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		return apperr.WrapWithCode(err, apperr.CodeUnavailable, "api.renders.artifact", "artifact stream interrupted")
	}
	return nil
}

func (h *Handler) lookup(r *http.Request) (*models.RenderJob, error) {
	id := chi.URLParam(r, "renderId")
	job, err := h.renders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrRenderNotFound) {
			return nil, apperr.NotFound("render", id)
		}
		return nil, apperr.Wrap(err, "api.renders.get", "db query failed")
	}
	return job, nil
}
