package encoder

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"framecast/internal/frame"
	"framecast/internal/pkg/logger"
)

// framePattern names scratch files by absolute frame index.
const framePattern = "frame-%06d.png"

// Batch writes every frame as a PNG into a scratch directory and encodes the
// sequence once in Finish.
type Batch struct {
	p       Params
	tool    Tool
	scratch string
	log     *logger.Logger

	mkdirOnce sync.Once
	mkdirErr  error

	next    uint32
	frames  uint32
	done    bool
	encoded bool
}

// NewBatch returns a batch adapter using scratch as its frame directory.
func NewBatch(p Params, tool Tool, scratch string, log *logger.Logger) *Batch {
	return &Batch{p: p, tool: tool, scratch: scratch, log: log, next: p.Start}
}

// ScratchDir is where frame files are written.
func (b *Batch) ScratchDir() string { return b.scratch }

// FramePath is the scratch file for frame index.
func (b *Batch) FramePath(index uint32) string {
	return filepath.Join(b.scratch, fmt.Sprintf(framePattern, index))
}

func (b *Batch) ensureScratch() error {
	b.mkdirOnce.Do(func() {
		b.mkdirErr = os.MkdirAll(b.scratch, 0o755)
	})
	return b.mkdirErr
}

// Ingest writes f to its numbered file.
func (b *Batch) Ingest(f frame.Captured) error {
	if b.done {
		return fail("encoder.batch.Ingest", ErrFinished)
	}
	if err := checkFrame(b.p, b.next, f); err != nil {
		return fail("encoder.batch.Ingest", err)
	}
	if err := b.ensureScratch(); err != nil {
		return fail("encoder.batch.Ingest", fmt.Errorf("create scratch dir: %w", err))
	}
	if err := writePNG(b.FramePath(f.Index), f); err != nil {
		return fail("encoder.batch.Ingest", err)
	}

	b.next++
	b.frames++
	return nil
}

// Finish encodes the written sequence. The scratch directory is removed
// whatever the outcome.
func (b *Batch) Finish(ctx context.Context) (Artifact, error) {
	if b.done {
		return Artifact{}, fail("encoder.batch.Finish", ErrFinished)
	}
	b.done = true
	defer b.removeScratch()

	if b.frames == 0 {
		return Artifact{}, fail("encoder.batch.Finish", ErrNoFrames)
	}
	if err := os.MkdirAll(filepath.Dir(b.p.Output), 0o755); err != nil {
		return Artifact{}, fail("encoder.batch.Finish", err)
	}

	b.encoded = true
	b.log.Info("encoding frame sequence", "frames", b.frames, "start", b.p.Start, "fps", b.p.FPS, "output", b.p.Output)
	err := b.tool.EncodeSequence(ctx, SequenceInput{
		Pattern:     filepath.Join(b.scratch, framePattern),
		StartNumber: b.p.Start,
		FPS:         b.p.FPS,
		Output:      b.p.Output,
	})
	if err != nil {
		_ = removeIfExists(b.p.Output)
		return Artifact{}, fail("encoder.batch.Finish", err)
	}
	return artifact(b.p, b.frames), nil
}

// Abort removes the scratch directory, and the output once the encoder has
// been run against it. A file already at the output path is left alone.
func (b *Batch) Abort() error {
	b.done = true
	b.removeScratch()
	if !b.encoded {
		return nil
	}
	return removeIfExists(b.p.Output)
}

func (b *Batch) removeScratch() {
	if err := os.RemoveAll(b.scratch); err != nil {
		b.log.Warn("failed to remove scratch dir", "dir", b.scratch, "error", err.Error())
	}
}

func writePNG(path string, f frame.Captured) error {
	img := &image.RGBA{
		Pix:    toRGBA(f),
		Stride: int(f.Width) * 4,
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := png.Encode(w, img); err != nil {
		_ = file.Close()
		return fmt.Errorf("encode frame %d: %w", f.Index, err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// toRGBA returns the pixels in RGBA order, copying only when a swap is needed.
func toRGBA(f frame.Captured) []byte {
	if f.Format == frame.RGBA {
		return f.Pixels
	}
	out := make([]byte, len(f.Pixels))
	for i := 0; i+3 < len(f.Pixels); i += 4 {
		out[i+0] = f.Pixels[i+2]
		out[i+1] = f.Pixels[i+1]
		out[i+2] = f.Pixels[i+0]
		out[i+3] = f.Pixels[i+3]
	}
	return out
}
