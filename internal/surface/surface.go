// Package surface defines the render surface contract: one isolated browser
// page at a fixed viewport that can load a bundle, run scripts and capture
// its raster.
package surface

import (
	"context"
	"fmt"

	"framecast/internal/composition"
	"framecast/internal/frame"
)

// Operations reported in Error.Op.
const (
	OpLaunch   = "launch"
	OpNavigate = "navigate"
	OpLoad     = "load"
	OpEvaluate = "evaluate"
	OpCapture  = "capture"
	OpClose    = "close"
)

// Viewport is the fixed page size of a surface, in CSS pixels.
type Viewport struct {
	Width  uint32
	Height uint32
}

// Raster is one captured screen.
type Raster struct {
	Pixels []byte
	Format frame.Format
	Width  uint32
	Height uint32
}

// Surface is one browser page. A surface is driven by a single goroutine.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	WaitLoaded(ctx context.Context) error
	// Evaluate runs script and returns its JSON encoded result. When
	// awaitPromise is set the returned promise is awaited first.
	Evaluate(ctx context.Context, script string, awaitPromise bool) (string, error)
	Capture(ctx context.Context) (Raster, error)
	Close() error
}

// Launcher starts surfaces. Each call returns a surface that shares no page
// state with any other.
type Launcher interface {
	Launch(ctx context.Context, vp Viewport) (Surface, error)
}

// Error is a surface failure.
type Error struct {
	Op      string
	Command string
	Err     error
}

func (e *Error) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("surface %s (%s): %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("surface %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil when err is nil, err itself when it already is a surface
// error, and a new Error otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return &Error{Op: op, Err: err}
}

// Run evaluates cmd on s and tags failures with the command name.
func Run(ctx context.Context, s Surface, cmd composition.Command) (string, error) {
	out, err := s.Evaluate(ctx, cmd.Script, cmd.Await)
	if err != nil {
		se, ok := err.(*Error)
		if !ok {
			se = &Error{Op: OpEvaluate, Err: err}
		}
		if se.Command == "" {
			se = &Error{Op: se.Op, Command: cmd.Name, Err: se.Err}
		}
		return "", se
	}
	return out, nil
}
