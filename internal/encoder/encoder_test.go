package encoder

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/pkg/logger"
)

// fakeTool records what it is asked to encode and writes a dummy output.
type fakeTool struct {
	mu        sync.Mutex
	sequences []SequenceInput
	seqFiles  []string
	streams   []StreamInput
	session   *fakeSession
	err       error
}

func (t *fakeTool) EncodeSequence(_ context.Context, in SequenceInput) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sequences = append(t.sequences, in)
	entries, _ := os.ReadDir(filepath.Dir(in.Pattern))
	for _, e := range entries {
		t.seqFiles = append(t.seqFiles, e.Name())
	}
	if t.err != nil {
		_ = os.WriteFile(in.Output, []byte("partial"), 0o644)
		return t.err
	}
	return os.WriteFile(in.Output, []byte("video"), 0o644)
}

func (t *fakeTool) StartStream(_ context.Context, in StreamInput) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streams = append(t.streams, in)
	t.session = &fakeSession{output: in.Output, err: t.err}
	return t.session, nil
}

type fakeSession struct {
	output  string
	buf     bytes.Buffer
	err     error
	aborted bool
}

func (s *fakeSession) Write(p []byte) (int, error) {
	if s.buf.Len() == 0 {
		_ = os.WriteFile(s.output, []byte("partial"), 0o644)
	}
	return s.buf.Write(p)
}

func (s *fakeSession) Finish() error {
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(s.output, s.buf.Bytes(), 0o644)
}

func (s *fakeSession) Abort() error {
	s.aborted = true
	return nil
}

func testFrame(index, w, h uint32, format frame.Format) frame.Captured {
	px := make([]byte, int(w*h*4))
	for i := range px {
		px[i] = byte(index)
	}
	return frame.Captured{Index: index, Pixels: px, Format: format, Width: w, Height: h}
}

func testParams(t *testing.T, start uint32) Params {
	return Params{Width: 4, Height: 2, FPS: 30, Start: start, Output: filepath.Join(t.TempDir(), "out", "video.mp4")}
}

func TestPresentationTime(t *testing.T) {
	tests := []struct {
		n, fps uint32
		want   time.Duration
	}{
		{0, 30, 0},
		{1, 30, 33333333},
		{90, 30, 2999999970},
		{25, 25, time.Second},
		{7, 0, 0},
	}
	for _, tt := range tests {
		if got := PresentationTime(tt.n, tt.fps); got != tt.want {
			t.Errorf("PresentationTime(%d, %d) = %d, want %d", tt.n, tt.fps, got, tt.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": StrategyStream, "stream": StrategyStream, "BATCH": StrategyBatch} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStrategy("gif"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestBatchEncodesSequence(t *testing.T) {
	tool := &fakeTool{}
	p := testParams(t, 10)
	scratch := filepath.Join(t.TempDir(), "frames")
	b := NewBatch(p, tool, scratch, logger.Discard())

	for i := uint32(10); i < 13; i++ {
		if err := b.Ingest(testFrame(i, 4, 2, frame.BGRA)); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	f, err := os.Open(b.FramePath(11))
	if err != nil {
		t.Fatalf("expected frame file: %v", err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil || img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected frame image: %v", err)
	}

	art, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if art.Frames != 3 || art.FPS != 30 || art.Path != p.Output || art.Duration != PresentationTime(3, 30) {
		t.Errorf("unexpected artifact %+v", art)
	}

	in := tool.sequences[0]
	if in.StartNumber != 10 || in.FPS != 30 || in.Pattern != filepath.Join(scratch, "frame-%06d.png") {
		t.Errorf("unexpected sequence input %+v", in)
	}
	want := []string{"frame-000010.png", "frame-000011.png", "frame-000012.png"}
	if len(tool.seqFiles) != len(want) {
		t.Fatalf("unexpected scratch files %v", tool.seqFiles)
	}
	for i := range want {
		if tool.seqFiles[i] != want[i] {
			t.Errorf("file %d = %s, want %s", i, tool.seqFiles[i], want[i])
		}
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("scratch dir must be removed after finish")
	}
}

func TestBatchToolFailureCleansUp(t *testing.T) {
	tool := &fakeTool{err: &ToolError{Stderr: "Unknown encoder", Err: errors.New("exit status 1")}}
	p := testParams(t, 0)
	scratch := filepath.Join(t.TempDir(), "frames")
	b := NewBatch(p, tool, scratch, logger.Discard())

	if err := b.Ingest(testFrame(0, 4, 2, frame.RGBA)); err != nil {
		t.Fatal(err)
	}
	_, err := b.Finish(context.Background())

	var te *ToolError
	if !errors.As(err, &te) || te.Stderr != "Unknown encoder" {
		t.Fatalf("expected tool error, got %v", err)
	}
	if !apperr.IsCode(err, apperr.CodeEncode) {
		t.Errorf("expected encode code, got %s", apperr.GetCode(err))
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("scratch dir must be removed after failure")
	}
	if _, err := os.Stat(p.Output); !os.IsNotExist(err) {
		t.Error("partial output must be removed")
	}
}

func TestBatchAbort(t *testing.T) {
	p := testParams(t, 0)
	scratch := filepath.Join(t.TempDir(), "frames")
	b := NewBatch(p, &fakeTool{}, scratch, logger.Discard())
	_ = b.Ingest(testFrame(0, 4, 2, frame.RGBA))

	if err := b.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("abort must remove scratch")
	}
	if err := b.Ingest(testFrame(1, 4, 2, frame.RGBA)); !errors.Is(err, ErrFinished) {
		t.Errorf("expected ErrFinished, got %v", err)
	}
}

func TestStreamWritesRawFrames(t *testing.T) {
	defer leaktest.Check(t)()

	tool := &fakeTool{}
	p := testParams(t, 5)
	s := NewStream(context.Background(), p, tool, logger.Discard())

	for i := uint32(5); i < 9; i++ {
		if err := s.Ingest(testFrame(i, 4, 2, frame.BGRA)); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	art, err := s.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	if len(tool.streams) != 1 {
		t.Fatalf("expected one session, got %d", len(tool.streams))
	}
	in := tool.streams[0]
	if in.Width != 4 || in.Height != 2 || in.FPS != 30 || in.PixelFormat != "bgra" {
		t.Errorf("unexpected stream input %+v", in)
	}
	data, _ := os.ReadFile(p.Output)
	if len(data) != 4*4*2*4 || data[0] != 5 || data[len(data)-1] != 8 {
		t.Errorf("unexpected encoded payload of %d bytes", len(data))
	}
	if art.Frames != 4 || art.Duration != PresentationTime(4, 30) {
		t.Errorf("unexpected artifact %+v", art)
	}
}

func TestStreamRejectsFormatChange(t *testing.T) {
	s := NewStream(context.Background(), testParams(t, 0), &fakeTool{}, logger.Discard())
	if err := s.Ingest(testFrame(0, 4, 2, frame.RGBA)); err != nil {
		t.Fatal(err)
	}
	if err := s.Ingest(testFrame(1, 4, 2, frame.BGRA)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected malformed frame, got %v", err)
	}
}

func TestStreamAbortRemovesOutput(t *testing.T) {
	tool := &fakeTool{}
	p := testParams(t, 0)
	s := NewStream(context.Background(), p, tool, logger.Discard())
	_ = s.Ingest(testFrame(0, 4, 2, frame.RGBA))

	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	if !tool.session.aborted {
		t.Error("expected session abort")
	}
	if _, err := os.Stat(p.Output); !os.IsNotExist(err) {
		t.Error("partial output must be removed")
	}
}

func TestAbortKeepsUntouchedOutput(t *testing.T) {
	tests := []struct {
		name   string
		mk     func(t *testing.T, p Params) Adapter
		ingest bool
	}{
		{"stream before first frame", func(t *testing.T, p Params) Adapter {
			return NewStream(context.Background(), p, &fakeTool{}, logger.Discard())
		}, false},
		{"batch before encode", func(t *testing.T, p Params) Adapter {
			return NewBatch(p, &fakeTool{}, filepath.Join(t.TempDir(), "frames"), logger.Discard())
		}, false},
		{"batch with frames before encode", func(t *testing.T, p Params) Adapter {
			return NewBatch(p, &fakeTool{}, filepath.Join(t.TempDir(), "frames"), logger.Discard())
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(t, 0)
			if err := os.MkdirAll(filepath.Dir(p.Output), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(p.Output, []byte("earlier render"), 0o644); err != nil {
				t.Fatal(err)
			}

			a := tt.mk(t, p)
			if tt.ingest {
				if err := a.Ingest(testFrame(0, 4, 2, frame.RGBA)); err != nil {
					t.Fatal(err)
				}
			}
			if err := a.Abort(); err != nil {
				t.Fatal(err)
			}

			data, err := os.ReadFile(p.Output)
			if err != nil {
				t.Fatalf("existing output must survive abort: %v", err)
			}
			if string(data) != "earlier render" {
				t.Errorf("output = %q, want untouched", data)
			}
		})
	}
}

func TestBatchAbortAfterEncodeRemovesOutput(t *testing.T) {
	p := testParams(t, 0)
	b := NewBatch(p, &fakeTool{}, filepath.Join(t.TempDir(), "frames"), logger.Discard())
	if err := b.Ingest(testFrame(0, 4, 2, frame.RGBA)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := b.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.Output); !os.IsNotExist(err) {
		t.Error("abort after encode must remove the output")
	}
}

func TestIngestValidation(t *testing.T) {
	strategies := map[string]func(t *testing.T) Adapter{
		"batch": func(t *testing.T) Adapter {
			return NewBatch(testParams(t, 0), &fakeTool{}, filepath.Join(t.TempDir(), "f"), logger.Discard())
		},
		"stream": func(t *testing.T) Adapter {
			return NewStream(context.Background(), testParams(t, 0), &fakeTool{}, logger.Discard())
		},
	}

	for name, mk := range strategies {
		t.Run(name, func(t *testing.T) {
			a := mk(t)

			short := testFrame(0, 4, 2, frame.RGBA)
			short.Pixels = short.Pixels[:10]
			if err := a.Ingest(short); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected malformed for short buffer, got %v", err)
			}
			if err := a.Ingest(testFrame(0, 8, 2, frame.RGBA)); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected malformed for size mismatch, got %v", err)
			}
			if err := a.Ingest(testFrame(1, 4, 2, frame.RGBA)); !errors.Is(err, ErrOutOfOrder) {
				t.Errorf("expected out of order, got %v", err)
			}
			_ = a.Abort()
		})
	}
}

func TestFinishWithoutFrames(t *testing.T) {
	for _, strategy := range []Strategy{StrategyBatch, StrategyStream} {
		t.Run(string(strategy), func(t *testing.T) {
			a, err := New(context.Background(), testParams(t, 0), Options{
				Strategy:   strategy,
				Tool:       &fakeTool{},
				ScratchDir: filepath.Join(t.TempDir(), "frames"),
			})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := a.Finish(context.Background()); !errors.Is(err, ErrNoFrames) {
				t.Errorf("expected ErrNoFrames, got %v", err)
			}
		})
	}
}

func TestNewValidatesParams(t *testing.T) {
	if _, err := New(context.Background(), Params{Width: 4, Height: 2, Output: "x.mp4"}, Options{Tool: &fakeTool{}}); err == nil {
		t.Error("expected error for zero fps")
	}
	if _, err := New(context.Background(), Params{Width: 4, Height: 2, FPS: 30, Output: "x.mp4"}, Options{}); err == nil {
		t.Error("expected error without tool")
	}
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		writes []string
		want   string
	}{
		{nil, ""},
		{[]string{"a\n", "b\n"}, "a\nb"},
		{[]string{"a\n", "b\n", "c\n", "d\n"}, "b\nc\nd"},
		{[]string{"par", "tial\nlast"}, "partial\nlast"},
	}

	for _, tt := range tests {
		l := NewLastLines(3)
		for _, w := range tt.writes {
			_, _ = l.Write([]byte(w))
		}
		l.Close()
		if got := l.String(); got != tt.want {
			t.Errorf("writes %q: got %q, want %q", tt.writes, got, tt.want)
		}
	}
}
