package models

import (
	"time"

	v1 "framecast/internal/contracts/render/v1"
)

type RenderStatus string

const (
	StatusQueued  RenderStatus = "QUEUED"
	StatusRunning RenderStatus = "RUNNING"
	StatusDone    RenderStatus = "DONE"
	StatusFailed  RenderStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s RenderStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusDone, StatusFailed:
		return true
	}
	return false
}

type RenderJob struct {
	ID         string       `json:"id"`
	Status     RenderStatus `json:"status"`
	Spec       v1.JobSpec   `json:"spec"`
	ErrorText  string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Artifact   *Artifact    `json:"artifact,omitempty"`
}

type Artifact struct {
	ID         string    `json:"id"`
	RenderID   string    `json:"render_id"`
	Provider   string    `json:"provider"`
	ObjectKey  string    `json:"object_key"`
	Mime       string    `json:"mime"`
	SizeBytes  int64     `json:"size_bytes"`
	Frames     uint32    `json:"frames"`
	FPS        uint32    `json:"fps"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
