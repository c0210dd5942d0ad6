package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"framecast/internal/models"
)

var ErrRenderNotFound = errors.New("render not found")
var ErrArtifactNotFound = errors.New("artifact not found")
var ErrRenderExists = errors.New("render id already exists")

// Schema creates the tables used by the repository.
const Schema = `
CREATE TABLE IF NOT EXISTS render_jobs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	spec_json   JSONB NOT NULL,
	error_text  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS render_jobs_status_created ON render_jobs (status, created_at DESC);
CREATE TABLE IF NOT EXISTS render_artifacts (
	id          TEXT PRIMARY KEY,
	render_id   TEXT NOT NULL REFERENCES render_jobs(id),
	provider    TEXT NOT NULL,
	object_key  TEXT NOT NULL,
	mime        TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL,
	frames      INTEGER NOT NULL,
	fps         INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type RenderRepository struct {
	db *pgxpool.Pool
}

func NewRenderRepository(db *pgxpool.Pool) *RenderRepository {
	return &RenderRepository{db: db}
}

// EnsureSchema applies Schema; it is safe to run on every start.
func (r *RenderRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

func (r *RenderRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *RenderRepository) Create(ctx context.Context, j *models.RenderJob) error {
	spec, err := json.Marshal(j.Spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	if j.Status == "" {
		j.Status = models.StatusQueued
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO render_jobs (id, status, spec_json)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, j.ID, string(j.Status), string(spec)).Scan(&j.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRenderExists
		}
		return err
	}
	return nil
}

func (r *RenderRepository) List(ctx context.Context, status models.RenderStatus, limit int) ([]models.RenderJob, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.Query(ctx, `
			SELECT id, status, spec_json, COALESCE(error_text,''), created_at, started_at, finished_at
			FROM render_jobs WHERE status=$1
			ORDER BY created_at DESC
			LIMIT $2
		`, string(status), limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT id, status, spec_json, COALESCE(error_text,''), created_at, started_at, finished_at
			FROM render_jobs
			ORDER BY created_at DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RenderJob, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// Get returns the job with its artifact when one was recorded.
func (r *RenderRepository) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
		SELECT id, status, spec_json, COALESCE(error_text,''), created_at, started_at, finished_at
		FROM render_jobs WHERE id=$1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRenderNotFound
		}
		return nil, err
	}

	a, err := r.GetArtifact(ctx, id)
	switch {
	case err == nil:
		j.Artifact = a
	case !errors.Is(err, ErrArtifactNotFound):
		return nil, err
	}
	return j, nil
}

func (r *RenderRepository) GetArtifact(ctx context.Context, renderID string) (*models.Artifact, error) {
	var a models.Artifact
	err := r.db.QueryRow(ctx, `
		SELECT id, render_id, provider, object_key, mime, size_bytes, frames, fps, duration_ms, created_at
		FROM render_artifacts WHERE render_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, renderID).Scan(
		&a.ID,
		&a.RenderID,
		&a.Provider,
		&a.ObjectKey,
		&a.Mime,
		&a.SizeBytes,
		&a.Frames,
		&a.FPS,
		&a.DurationMS,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *RenderRepository) MarkRunning(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE render_jobs SET status='RUNNING', started_at=now(), finished_at=NULL, error_text=NULL WHERE id=$1`, id)
}

func (r *RenderRepository) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE render_jobs SET status='DONE', finished_at=now() WHERE id=$1`, id)
}

func (r *RenderRepository) MarkFailed(ctx context.Context, id, errorText string) error {
	return r.exec(ctx, `UPDATE render_jobs SET status='FAILED', finished_at=now(), error_text=$2 WHERE id=$1`, id, errorText)
}

func (r *RenderRepository) InsertArtifact(ctx context.Context, a *models.Artifact) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO render_artifacts (id, render_id, provider, object_key, mime, size_bytes, frames, fps, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, a.ID, a.RenderID, a.Provider, a.ObjectKey, a.Mime, a.SizeBytes, a.Frames, a.FPS, a.DurationMS).Scan(&a.CreatedAt)
}

func (r *RenderRepository) exec(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRenderNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*models.RenderJob, error) {
	var (
		j      models.RenderJob
		status string
		spec   []byte
	)
	if err := row.Scan(&j.ID, &status, &spec, &j.ErrorText, &j.CreatedAt, &j.StartedAt, &j.FinishedAt); err != nil {
		return nil, err
	}
	j.Status = models.RenderStatus(status)
	if err := json.Unmarshal(spec, &j.Spec); err != nil {
		return nil, fmt.Errorf("decode spec of %s: %w", j.ID, err)
	}
	return &j, nil
}
