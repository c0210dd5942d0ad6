package render

import (
	"encoding/json"
	"runtime"
	"time"

	"framecast/internal/composition"
	"framecast/internal/encoder"
	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/surface"
)

// Options describe one render.
type Options struct {
	BundlePath    string
	OutputPath    string
	CompositionID string
	// Props is an optional JSON object merged over the composition's
	// resolved props.
	Props json.RawMessage
	// Frames limits the render; nil means the whole composition and an End
	// of 0 means "to the last frame".
	Frames *frame.Range
	// Workers overrides Config.Workers when positive.
	Workers int
	// OnProgress is called from the consuming goroutine after every frame.
	OnProgress func(Progress)
}

// Progress counts frames through the pipeline.
type Progress struct {
	Captured uint32
	Encoded  uint32
	Total    uint32
}

// Result describes a finished render.
type Result struct {
	Artifact    encoder.Artifact
	Composition composition.Descriptor
	Range       frame.Range
	Workers     int
	Elapsed     time.Duration
}

// Config holds renderer settings shared by every render.
type Config struct {
	// Workers is the default worker count; 0 means one per CPU.
	Workers         int
	PageLoadTimeout time.Duration
	FrameTimeout    time.Duration
	// FrameRetries is how many extra attempts a failed frame gets. Zero takes
	// the default; use NoRetries to fail on the first error.
	FrameRetries int
	// InjectScript evaluates the bundle's bundle.js after the page loads.
	InjectScript bool
	// ServeBundle serves the bundle over loopback HTTP instead of file URLs.
	ServeBundle bool
	// ProbeViewport sizes the surface used to read composition metadata.
	ProbeViewport surface.Viewport
	Encoder       encoder.Strategy
	// ScratchRoot holds batch frame directories; empty means os.TempDir.
	ScratchRoot string
}

// NoRetries disables frame retries in Config.FrameRetries.
const NoRetries = -1

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PageLoadTimeout: 30 * time.Second,
		FrameTimeout:    10 * time.Second,
		FrameRetries:    1,
		ProbeViewport:   surface.Viewport{Width: 1280, Height: 720},
		Encoder:         encoder.StrategyStream,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = def.PageLoadTimeout
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = def.FrameTimeout
	}
	switch {
	case c.FrameRetries == 0:
		c.FrameRetries = def.FrameRetries
	case c.FrameRetries < 0:
		c.FrameRetries = 0
	}
	if c.ProbeViewport.Width == 0 || c.ProbeViewport.Height == 0 {
		c.ProbeViewport = def.ProbeViewport
	}
	if c.Encoder == "" {
		c.Encoder = def.Encoder
	}
	return c
}

func (c Config) workers(override int) int {
	switch {
	case override > 0:
		return override
	case c.Workers > 0:
		return c.Workers
	}
	return runtime.NumCPU()
}

func (o Options) validate() error {
	switch {
	case o.BundlePath == "":
		return apperr.Config("bundle_path", "bundle path is required")
	case o.OutputPath == "":
		return apperr.Config("output_path", "output path is required")
	case o.CompositionID == "":
		return apperr.Config("composition_id", "composition id is required")
	case o.Workers < 0:
		return apperr.Config("workers", "worker count must not be negative")
	}
	return nil
}

// ResolveRange applies the frame range rules against a composition of
// total frames: nil selects everything, an End of 0 stands for total.
func ResolveRange(req *frame.Range, total uint32) (frame.Range, error) {
	r := frame.Range{Start: 0, End: total}
	if req != nil {
		r = *req
		if r.End == 0 {
			r.End = total
		}
	}

	switch {
	case r.End > total:
		return r, apperr.Config("frames", "frame range %s exceeds composition length %d", r, total)
	case r.Start >= r.End:
		return r, apperr.Config("frames", "empty frame range %s", r)
	}
	return r, nil
}
