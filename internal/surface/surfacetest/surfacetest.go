// Package surfacetest provides an in-memory render surface that understands
// the composition-state commands and paints frames deterministically.
package surfacetest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"framecast/internal/composition"
	"framecast/internal/frame"
	"framecast/internal/surface"
)

var (
	setFrameRe = regexp.MustCompile(`remotion_setFrame\((\d+),\s*("(?:[^"\\]|\\.)*")\)`)
	compNameRe = regexp.MustCompile(`compositionName:\s*("(?:[^"\\]|\\.)*")`)
	propsRe    = regexp.MustCompile(`serializedResolvedPropsWithSchema:\s*("(?:[^"\\]|\\.)*")`)
)

// Launcher hands out fake surfaces. Hooks are optional and may be called
// from several goroutines at once.
type Launcher struct {
	Compositions []composition.Descriptor

	// FailLaunch fails the n-th launch (0 based) when it returns an error.
	FailLaunch func(n int) error
	// FailLoad fails WaitLoaded of the n-th launched surface.
	FailLoad func(n int) error
	// FailCapture fails a frame capture; attempt counts from 0 per surface.
	FailCapture func(index uint32, attempt int) error
	// CaptureDelay stalls a capture, honoring ctx.
	CaptureDelay func(index uint32) time.Duration
	// FailClose makes Close of the n-th surface report an error. The surface
	// still counts as closed.
	FailClose func(n int) error

	launches atomic.Int32
	closes   atomic.Int32

	mu       sync.Mutex
	surfaces []*Surface
}

// Launch returns a new fake surface.
func (l *Launcher) Launch(ctx context.Context, vp surface.Viewport) (surface.Surface, error) {
	n := int(l.launches.Add(1)) - 1
	if l.FailLaunch != nil {
		if err := l.FailLaunch(n); err != nil {
			l.closes.Add(1)
			return nil, &surface.Error{Op: surface.OpLaunch, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		l.closes.Add(1)
		return nil, &surface.Error{Op: surface.OpLaunch, Err: err}
	}

	s := &Surface{launcher: l, n: n, vp: vp, attempts: map[uint32]int{}}
	l.mu.Lock()
	l.surfaces = append(l.surfaces, s)
	l.mu.Unlock()
	return s, nil
}

// Launches is the number of Launch calls.
func (l *Launcher) Launches() int { return int(l.launches.Load()) }

// Open is the number of surfaces launched and not yet closed.
func (l *Launcher) Open() int { return int(l.launches.Load() - l.closes.Load()) }

// Surfaces returns every surface launched so far.
func (l *Launcher) Surfaces() []*Surface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Surface(nil), l.surfaces...)
}

// Surface is a fake page. Its state follows the commands it receives.
type Surface struct {
	launcher *Launcher
	n        int
	vp       surface.Viewport

	mu             sync.Mutex
	url            string
	loaded         bool
	composition    string
	props          string
	frame          int64
	setComposition int
	captured       []uint32
	attempts       map[uint32]int
	closed         bool
}

// Navigate records url.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &surface.Error{Op: surface.OpNavigate, Err: fmt.Errorf("surface closed")}
	}
	s.url = url
	s.frame = -1
	return ctx.Err()
}

// WaitLoaded marks the page loaded unless FailLoad says otherwise.
func (s *Surface) WaitLoaded(ctx context.Context) error {
	if s.launcher.FailLoad != nil {
		if err := s.launcher.FailLoad(s.n); err != nil {
			return &surface.Error{Op: surface.OpLoad, Err: err}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return &surface.Error{Op: surface.OpLoad, Err: fmt.Errorf("nothing navigated")}
	}
	s.loaded = true
	return ctx.Err()
}

// Evaluate interprets the composition-state commands.
func (s *Surface) Evaluate(ctx context.Context, script string, _ bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &surface.Error{Op: surface.OpEvaluate, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return "", &surface.Error{Op: surface.OpEvaluate, Err: fmt.Errorf("page not loaded")}
	}

	switch {
	case strings.Contains(script, "getStaticCompositions"):
		list, err := json.Marshal(s.launcher.Compositions)
		if err != nil {
			return "", err
		}
		quoted, _ := json.Marshal(string(list))
		return string(quoted), nil

	case strings.Contains(script, "remotion_setFrame"):
		m := setFrameRe.FindStringSubmatch(script)
		if m == nil {
			return "", &surface.Error{Op: surface.OpEvaluate, Err: fmt.Errorf("bad set frame script %q", script)}
		}
		var id string
		_ = json.Unmarshal([]byte(m[2]), &id)
		if id != s.composition {
			return "", &surface.Error{Op: surface.OpEvaluate, Err: fmt.Errorf("composition %q not prepared", id)}
		}
		idx, _ := strconv.ParseInt(m[1], 10, 64)
		s.frame = idx
		return "null", nil

	case strings.Contains(script, "type: 'composition'"):
		m := compNameRe.FindStringSubmatch(script)
		if m == nil {
			return "", &surface.Error{Op: surface.OpEvaluate, Err: fmt.Errorf("bad composition script")}
		}
		_ = json.Unmarshal([]byte(m[1]), &s.composition)
		if p := propsRe.FindStringSubmatch(script); p != nil {
			_ = json.Unmarshal([]byte(p[1]), &s.props)
		}
		s.setComposition++
		return "null", nil
	}

	return "true", nil
}

// Capture paints the current frame. The first four bytes carry the frame
// index little endian; the rest is derived from the composition state.
func (s *Surface) Capture(ctx context.Context) (surface.Raster, error) {
	s.mu.Lock()
	idx := s.frame
	var attempt int
	if idx >= 0 {
		attempt = s.attempts[uint32(idx)]
		s.attempts[uint32(idx)]++
	}
	s.mu.Unlock()

	if idx < 0 {
		return surface.Raster{}, &surface.Error{Op: surface.OpCapture, Err: fmt.Errorf("no frame set")}
	}
	if d := s.launcher.CaptureDelay; d != nil {
		select {
		case <-time.After(d(uint32(idx))):
		case <-ctx.Done():
			return surface.Raster{}, &surface.Error{Op: surface.OpCapture, Err: ctx.Err()}
		}
	}
	if f := s.launcher.FailCapture; f != nil {
		if err := f(uint32(idx), attempt); err != nil {
			return surface.Raster{}, &surface.Error{Op: surface.OpCapture, Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = append(s.captured, uint32(idx))
	return surface.Raster{
		Pixels: Paint(s.vp.Width, s.vp.Height, uint32(idx), s.composition+s.props),
		Format: frame.RGBA,
		Width:  s.vp.Width,
		Height: s.vp.Height,
	}, nil
}

// Close releases the surface once.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.launcher.closes.Add(1)
	if f := s.launcher.FailClose; f != nil {
		return f(s.n)
	}
	return nil
}

// SetCompositionCalls is how often the surface entered composition mode.
func (s *Surface) SetCompositionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setComposition
}

// Captured lists captured indices in capture order.
func (s *Surface) Captured() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.captured...)
}

// Paint builds the deterministic raster for a frame.
func Paint(w, h, index uint32, state string) []byte {
	px := make([]byte, int(w)*int(h)*4)
	hs := fnv.New32a()
	_, _ = hs.Write([]byte(state))
	fill := byte(hs.Sum32())
	for i := range px {
		px[i] = fill
	}
	if len(px) >= 4 {
		binary.LittleEndian.PutUint32(px, index)
	}
	return px
}

// IndexOf reads back the frame index stamped by Paint.
func IndexOf(pixels []byte) uint32 {
	if len(pixels) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(pixels)
}
