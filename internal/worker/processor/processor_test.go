package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"framecast/internal/adapters/storage/localfs"
	v1 "framecast/internal/contracts/render/v1"
	"framecast/internal/encoder"
	"framecast/internal/frame"
	"framecast/internal/models"
	"framecast/internal/pkg/logger"
	"framecast/internal/ports"
	"framecast/internal/render"
)

type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*models.RenderJob
	artifacts []*models.Artifact
	statuses  []models.RenderStatus
}

func newMemStore(jobs ...*models.RenderJob) *memStore {
	s := &memStore{jobs: map[string]*models.RenderJob{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*models.RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("render not found")
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) set(id string, st models.RenderStatus, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return errors.New("render not found")
	}
	j.Status = st
	j.ErrorText = text
	s.statuses = append(s.statuses, st)
	return nil
}

func (s *memStore) MarkRunning(_ context.Context, id string) error {
	return s.set(id, models.StatusRunning, "")
}

func (s *memStore) MarkDone(_ context.Context, id string) error {
	return s.set(id, models.StatusDone, "")
}

func (s *memStore) MarkFailed(_ context.Context, id, text string) error {
	return s.set(id, models.StatusFailed, text)
}

func (s *memStore) InsertArtifact(_ context.Context, a *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.CreatedAt = time.Now()
	s.artifacts = append(s.artifacts, a)
	return nil
}

func (s *memStore) job(id string) models.RenderJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

// fakeRenderer writes a small file in place of a video.
type fakeRenderer struct {
	err  error
	opts render.Options
}

func (f *fakeRenderer) Render(_ context.Context, opts render.Options) (*render.Result, error) {
	f.opts = opts
	if opts.OnProgress != nil {
		for i := uint32(1); i <= 30; i++ {
			opts.OnProgress(render.Progress{Captured: i, Encoded: i, Total: 30})
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(opts.OutputPath, []byte("video-bytes"), 0o644); err != nil {
		return nil, err
	}
	return &render.Result{
		Artifact: encoder.Artifact{Path: opts.OutputPath, Frames: 30, FPS: 30, Duration: encoder.PresentationTime(30, 30)},
		Range:    frame.Range{Start: 0, End: 30},
		Workers:  2,
	}, nil
}

// memProvider is a remote-looking storage provider.
type memProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memProvider) Provider() string { return "memory" }

func (m *memProvider) PutObject(_ context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	id := "remote-" + in.ObjectKey
	m.objects[id] = b
	return ports.PutObjectOutput{ObjectKey: id, Size: int64(len(b))}, nil
}

func (m *memProvider) GetObject(_ context.Context, key string) (io.ReadCloser, string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, "", 0, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), "video/mp4", int64(len(b)), nil
}

func (m *memProvider) DeleteObject(context.Context, string) error { return nil }

func (m *memProvider) GetSignedURL(context.Context, string, time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, nil
}

func queuedJob(id string) *models.RenderJob {
	return &models.RenderJob{
		ID:     id,
		Status: models.StatusQueued,
		Spec: v1.JobSpec{
			BundlePath:    "/bundles/hello",
			CompositionID: "HelloWorld",
			Frames:        &v1.FrameRange{Start: 0, End: 30},
		},
	}
}

func TestProcessJobLocal(t *testing.T) {
	root := t.TempDir()
	store := newMemStore(queuedJob("rnd_1"))
	r := &fakeRenderer{}

	p := New(Deps{Store: store, Renderer: r, StorageRoot: root, SP: localfs.New(root), CleanupLocal: true, Log: logger.Discard()})
	if err := p.ProcessJob(context.Background(), "rnd_1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := filepath.Join(root, "renders", "rnd_1", v1.DefaultOutputName)
	if r.opts.OutputPath != want || r.opts.CompositionID != "HelloWorld" || r.opts.Frames == nil {
		t.Errorf("unexpected render options %+v", r.opts)
	}
	if got := store.job("rnd_1").Status; got != models.StatusDone {
		t.Errorf("expected DONE, got %s", got)
	}
	if fmt.Sprint(store.statuses) != "[RUNNING DONE]" {
		t.Errorf("unexpected status sequence %v", store.statuses)
	}

	if len(store.artifacts) != 1 {
		t.Fatalf("expected one artifact, got %d", len(store.artifacts))
	}
	a := store.artifacts[0]
	if a.Provider != "localfs" || a.ObjectKey != "renders/rnd_1/video.mp4" || a.Mime != "video/mp4" {
		t.Errorf("unexpected artifact %+v", a)
	}
	if a.SizeBytes != int64(len("video-bytes")) || a.Frames != 30 || a.DurationMS != 999 {
		t.Errorf("unexpected artifact metrics %+v", a)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("local artifact must stay with localfs storage: %v", err)
	}
}

func TestProcessJobRemoteCleansUp(t *testing.T) {
	root := t.TempDir()
	store := newMemStore(queuedJob("rnd_2"))
	sp := &memProvider{}

	p := New(Deps{Store: store, Renderer: &fakeRenderer{}, StorageRoot: root, SP: sp, CleanupLocal: true, Log: logger.Discard()})
	if err := p.ProcessJob(context.Background(), "rnd_2"); err != nil {
		t.Fatalf("process: %v", err)
	}

	if string(sp.objects["remote-renders/rnd_2/video.mp4"]) != "video-bytes" {
		t.Errorf("expected upload, got %v", sp.objects)
	}
	if store.artifacts[0].ObjectKey != "remote-renders/rnd_2/video.mp4" {
		t.Errorf("artifact must record the provider key, got %s", store.artifacts[0].ObjectKey)
	}
	if _, err := os.Stat(filepath.Join(root, "renders", "rnd_2")); !os.IsNotExist(err) {
		t.Error("local render directory should be removed after upload")
	}
}

func TestProcessJobRenderFailure(t *testing.T) {
	root := t.TempDir()
	store := newMemStore(queuedJob("rnd_3"))
	cause := &render.Error{
		Stage:   render.StageCapture,
		Missing: []frame.Range{{Start: 10, End: 20}},
		Err:     errors.New(strings.Repeat("x", 3000)),
	}

	p := New(Deps{Store: store, Renderer: &fakeRenderer{err: cause}, StorageRoot: root, SP: localfs.New(root), Log: logger.Discard()})
	err := p.ProcessJob(context.Background(), "rnd_3")
	if err == nil {
		t.Fatal("expected error")
	}

	job := store.job("rnd_3")
	if job.Status != models.StatusFailed {
		t.Errorf("expected FAILED, got %s", job.Status)
	}
	if len(job.ErrorText) != maxErrorText {
		t.Errorf("expected error text truncated to %d, got %d", maxErrorText, len(job.ErrorText))
	}
	if !strings.Contains(job.ErrorText, "capture stage") {
		t.Errorf("error text should name the stage: %.120s", job.ErrorText)
	}
	if len(store.artifacts) != 0 {
		t.Error("no artifact may be recorded")
	}
}

func TestProcessJobInvalidSpec(t *testing.T) {
	job := queuedJob("rnd_4")
	job.Spec.CompositionID = "  "
	store := newMemStore(job)
	r := &fakeRenderer{}

	p := New(Deps{Store: store, Renderer: r, StorageRoot: t.TempDir(), SP: &memProvider{}, Log: logger.Discard()})
	if err := p.ProcessJob(context.Background(), "rnd_4"); err == nil {
		t.Fatal("expected validation error")
	}
	got := store.job("rnd_4")
	if got.Status != models.StatusFailed || !strings.Contains(got.ErrorText, "composition_id") {
		t.Errorf("unexpected job state %s %q", got.Status, got.ErrorText)
	}
	if r.opts.CompositionID != "" {
		t.Error("renderer must not run for an invalid spec")
	}
}

func TestProcessJobMissing(t *testing.T) {
	store := newMemStore()
	p := New(Deps{Store: store, Renderer: &fakeRenderer{}, StorageRoot: t.TempDir(), SP: &memProvider{}, Log: logger.Discard()})
	if err := p.ProcessJob(context.Background(), "nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestHelpers(t *testing.T) {
	if got := ObjectKey("rnd_1", "../my video.mp4"); got != "renders/rnd_1/_my_video.mp4" {
		t.Errorf("unexpected object key %q", got)
	}
	if MimeFromName("a.webm") != "video/webm" || MimeFromName("a.MP4") != "video/mp4" {
		t.Error("unexpected mime mapping")
	}
	if got := truncate("héllo", 2); got != "h" {
		t.Errorf("truncate must not split runes, got %q", got)
	}
}
