package encoder

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// FFmpegPath is the default ffmpeg binary, resolved through PATH.
var FFmpegPath = "ffmpeg"

// SequenceInput is a numbered image sequence to encode in one run.
type SequenceInput struct {
	// Pattern is a printf style path such as /tmp/x/frame-%06d.png.
	Pattern     string
	StartNumber uint32
	FPS         uint32
	Output      string
}

// StreamInput describes raw frames written to a Session.
type StreamInput struct {
	Width       uint32
	Height      uint32
	FPS         uint32
	PixelFormat string
	Output      string
}

// Session is a running encoder fed through Write.
type Session interface {
	io.Writer
	// Finish closes the input and waits for the encoder to exit.
	Finish() error
	// Abort stops the encoder without waiting for a complete file.
	Abort() error
}

// Tool is the external encoder.
type Tool interface {
	EncodeSequence(ctx context.Context, in SequenceInput) error
	StartStream(ctx context.Context, in StreamInput) (Session, error)
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	// Path overrides FFmpegPath.
	Path        string
	Codec       string
	PixelFormat string
	CRF         int
	Preset      string
	// ExtraArgs are inserted before the output path.
	ExtraArgs []string
	// StderrLines is how many trailing stderr lines a ToolError keeps.
	StderrLines int
	// Stderr also receives the tool's stderr when set.
	Stderr io.Writer
}

func (f *FFmpeg) path() string {
	if f.Path != "" {
		return f.Path
	}
	return FFmpegPath
}

func (f *FFmpeg) outputArgs(fps uint32, output string) []string {
	codec := f.Codec
	if codec == "" {
		codec = "libx264"
	}
	pixfmt := f.PixelFormat
	if pixfmt == "" {
		pixfmt = "yuv420p"
	}

	args := []string{"-c:v", codec, "-pix_fmt", pixfmt}
	if f.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(f.CRF))
	}
	if f.Preset != "" {
		args = append(args, "-preset", f.Preset)
	}
	args = append(args, "-r", strconv.FormatUint(uint64(fps), 10))
	args = append(args, f.ExtraArgs...)
	return append(args, output)
}

// SequenceArgs are the ffmpeg arguments used by EncodeSequence.
func (f *FFmpeg) SequenceArgs(in SequenceInput) []string {
	args := []string{
		"-nostdin", "-hide_banner", "-y",
		"-framerate", strconv.FormatUint(uint64(in.FPS), 10),
		"-start_number", strconv.FormatUint(uint64(in.StartNumber), 10),
		"-i", in.Pattern,
	}
	return append(args, f.outputArgs(in.FPS, in.Output)...)
}

// StreamArgs are the ffmpeg arguments used by StartStream.
func (f *FFmpeg) StreamArgs(in StreamInput) []string {
	args := []string{
		"-hide_banner", "-y",
		"-f", "rawvideo",
		"-pix_fmt", in.PixelFormat,
		"-s", fmt.Sprintf("%dx%d", in.Width, in.Height),
		"-framerate", strconv.FormatUint(uint64(in.FPS), 10),
		"-i", "pipe:0",
	}
	return append(args, f.outputArgs(in.FPS, in.Output)...)
}

func (f *FFmpeg) command(ctx context.Context, args []string) (*exec.Cmd, *LastLines) {
	cmd := exec.CommandContext(ctx, f.path(), args...)
	n := f.StderrLines
	if n <= 0 {
		n = 20
	}
	tail := NewLastLines(n)
	if f.Stderr != nil {
		cmd.Stderr = io.MultiWriter(tail, f.Stderr)
	} else {
		cmd.Stderr = tail
	}
	return cmd, tail
}

// EncodeSequence runs ffmpeg once over an image sequence.
func (f *FFmpeg) EncodeSequence(ctx context.Context, in SequenceInput) error {
	cmd, tail := f.command(ctx, f.SequenceArgs(in))
	if err := cmd.Run(); err != nil {
		tail.Close()
		return &ToolError{Stderr: tail.String(), Err: err}
	}
	return nil
}

// StartStream starts ffmpeg reading raw frames from stdin.
func (f *FFmpeg) StartStream(ctx context.Context, in StreamInput) (Session, error) {
	cmd, tail := f.command(ctx, f.StreamArgs(in))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Err: err}
	}
	return &ffmpegSession{cmd: cmd, stdin: stdin, tail: tail}, nil
}

type ffmpegSession struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	tail  *LastLines

	once sync.Once
	err  error
}

func (s *ffmpegSession) Write(p []byte) (int, error) {
	n, err := s.stdin.Write(p)
	if err != nil {
		// A write to a dead encoder fails with EPIPE; the exit status and
		// stderr are what explain it.
		s.wait()
		if s.err != nil {
			return n, s.err
		}
	}
	return n, err
}

func (s *ffmpegSession) Finish() error {
	s.wait()
	return s.err
}

func (s *ffmpegSession) Abort() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}

func (s *ffmpegSession) wait() {
	s.once.Do(func() {
		_ = s.stdin.Close()
		if err := s.cmd.Wait(); err != nil {
			s.tail.Close()
			s.err = &ToolError{Stderr: s.tail.String(), Err: err}
		}
	})
}
