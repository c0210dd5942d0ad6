// Package encoder turns an ordered stream of captured frames into a video
// file. Two strategies exist: Batch writes numbered PNG files and encodes
// them in one tool run, Stream pipes raw pixels into a running encoder.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/pkg/logger"
)

var (
	// ErrNoFrames is returned by Finish when nothing was ingested.
	ErrNoFrames = errors.New("no frames ingested")
	// ErrMalformedFrame is returned for a pixel buffer that does not match
	// the encoder dimensions or changes pixel format mid-stream.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrOutOfOrder is returned when a frame index is not the next expected one.
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrFinished is returned when the adapter is used after Finish or Abort.
	ErrFinished = errors.New("encoder already finished")
)

// ToolError is a non-zero exit of the external encoder.
type ToolError struct {
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("encoder tool failed: %v", e.Err)
	}
	return fmt.Sprintf("encoder tool failed: %v: %s", e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Adapter consumes frames in ascending index order and produces the artifact.
// It is used from a single goroutine.
type Adapter interface {
	Ingest(f frame.Captured) error
	Finish(ctx context.Context) (Artifact, error)
	// Abort discards everything written so far, including a partial output file.
	Abort() error
}

// Params fix the shape of the video.
type Params struct {
	Width  uint32
	Height uint32
	FPS    uint32
	// Start is the index of the first frame to be ingested.
	Start  uint32
	Output string
}

func (p Params) validate() error {
	switch {
	case p.Width == 0 || p.Height == 0:
		return fmt.Errorf("invalid dimensions %dx%d", p.Width, p.Height)
	case p.FPS == 0:
		return fmt.Errorf("invalid fps 0")
	case p.Output == "":
		return fmt.Errorf("output path is required")
	}
	return nil
}

// Artifact describes a finished video.
type Artifact struct {
	Path     string        `json:"path"`
	Frames   uint32        `json:"frames"`
	FPS      uint32        `json:"fps"`
	Duration time.Duration `json:"duration"`
}

// PresentationTime is the start time of the n-th frame after the first at
// fps, using truncated integer nanoseconds per frame.
func PresentationTime(n, fps uint32) time.Duration {
	if fps == 0 {
		return 0
	}
	return time.Duration(int64(n) * (int64(time.Second) / int64(fps)))
}

// Strategy selects an adapter implementation.
type Strategy string

const (
	StrategyStream Strategy = "stream"
	StrategyBatch  Strategy = "batch"
)

// ParseStrategy accepts "stream" or "batch"; empty means stream.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyStream:
		return StrategyStream, nil
	case StrategyBatch:
		return StrategyBatch, nil
	}
	return "", fmt.Errorf("unknown encoder strategy %q", s)
}

// Options configure New.
type Options struct {
	Strategy Strategy
	Tool     Tool
	// ScratchDir holds PNG files for the batch strategy. It is created on
	// first use and removed by Finish and Abort.
	ScratchDir string
	Log        *logger.Logger
}

// New builds the adapter selected by opts.Strategy. ctx bounds the
// lifetime of a streaming encoder process.
func New(ctx context.Context, p Params, opts Options) (Adapter, error) {
	if err := p.validate(); err != nil {
		return nil, fail("encoder.New", err)
	}
	if opts.Tool == nil {
		return nil, fail("encoder.New", fmt.Errorf("no encoder tool configured"))
	}
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("encoder")

	switch opts.Strategy {
	case StrategyBatch:
		scratch := opts.ScratchDir
		if scratch == "" {
			scratch = filepath.Join(os.TempDir(), "framecast-"+filepath.Base(p.Output)+".frames")
		}
		return NewBatch(p, opts.Tool, scratch, log), nil
	case StrategyStream, "":
		return NewStream(ctx, p, opts.Tool, log), nil
	}
	return nil, fail("encoder.New", fmt.Errorf("unknown encoder strategy %q", opts.Strategy))
}

// checkFrame enforces order and geometry for the next ingested frame.
func checkFrame(p Params, next uint32, f frame.Captured) error {
	if f.Index != next {
		return fmt.Errorf("%w: got frame %d, want %d", ErrOutOfOrder, f.Index, next)
	}
	if f.Width != p.Width || f.Height != p.Height {
		return fmt.Errorf("%w: frame %d is %dx%d, want %dx%d", ErrMalformedFrame, f.Index, f.Width, f.Height, p.Width, p.Height)
	}
	if want := int(p.Width) * int(p.Height) * f.Format.BytesPerPixel(); len(f.Pixels) != want {
		return fmt.Errorf("%w: frame %d has %d bytes, want %d", ErrMalformedFrame, f.Index, len(f.Pixels), want)
	}
	return nil
}

func artifact(p Params, frames uint32) Artifact {
	return Artifact{
		Path:     p.Output,
		Frames:   frames,
		FPS:      p.FPS,
		Duration: PresentationTime(frames, p.FPS),
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.WrapWithCode(err, apperr.CodeEncode, op, "encode failed")
}
