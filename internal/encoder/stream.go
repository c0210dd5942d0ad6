package encoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"framecast/internal/frame"
	"framecast/internal/pkg/logger"
)

// Stream pipes raw frames into an encoder session opened on the first frame.
type Stream struct {
	ctx  context.Context
	p    Params
	tool Tool
	log  *logger.Logger

	sess   Session
	format frame.Format
	next   uint32
	frames uint32
	done   bool
}

// NewStream returns a streaming adapter. The tool process lives until
// Finish, Abort or the end of ctx.
func NewStream(ctx context.Context, p Params, tool Tool, log *logger.Logger) *Stream {
	return &Stream{ctx: ctx, p: p, tool: tool, log: log, next: p.Start}
}

// Ingest writes f's pixels to the session.
func (s *Stream) Ingest(f frame.Captured) error {
	if s.done {
		return fail("encoder.stream.Ingest", ErrFinished)
	}
	if err := checkFrame(s.p, s.next, f); err != nil {
		return fail("encoder.stream.Ingest", err)
	}

	if s.sess == nil {
		if err := os.MkdirAll(filepath.Dir(s.p.Output), 0o755); err != nil {
			return fail("encoder.stream.Ingest", err)
		}
		sess, err := s.tool.StartStream(s.ctx, StreamInput{
			Width:       s.p.Width,
			Height:      s.p.Height,
			FPS:         s.p.FPS,
			PixelFormat: f.Format.String(),
			Output:      s.p.Output,
		})
		if err != nil {
			return fail("encoder.stream.Ingest", err)
		}
		s.sess = sess
		s.format = f.Format
		s.log.Info("encoder stream started", "width", s.p.Width, "height", s.p.Height, "fps", s.p.FPS, "pixel_format", f.Format.String())
	} else if f.Format != s.format {
		return fail("encoder.stream.Ingest", fmt.Errorf("%w: frame %d is %s, stream is %s", ErrMalformedFrame, f.Index, f.Format, s.format))
	}

	if _, err := s.sess.Write(f.Pixels); err != nil {
		return fail("encoder.stream.Ingest", err)
	}
	s.next++
	s.frames++
	return nil
}

// Finish closes the session and waits for the encoder.
func (s *Stream) Finish(ctx context.Context) (Artifact, error) {
	if s.done {
		return Artifact{}, fail("encoder.stream.Finish", ErrFinished)
	}
	s.done = true

	if s.frames == 0 || s.sess == nil {
		return Artifact{}, fail("encoder.stream.Finish", ErrNoFrames)
	}

	finished := make(chan error, 1)
	go func() { finished <- s.sess.Finish() }()

	select {
	case err := <-finished:
		if err != nil {
			_ = removeIfExists(s.p.Output)
			return Artifact{}, fail("encoder.stream.Finish", err)
		}
	case <-ctx.Done():
		_ = s.sess.Abort()
		<-finished
		_ = removeIfExists(s.p.Output)
		return Artifact{}, fail("encoder.stream.Finish", ctx.Err())
	}

	return artifact(s.p, s.frames), nil
}

// Abort stops the encoder and removes the partial output. Without a session
// nothing was written, so a file already at the output path stays.
func (s *Stream) Abort() error {
	s.done = true
	if s.sess == nil {
		return nil
	}
	_ = s.sess.Abort()
	return removeIfExists(s.p.Output)
}
