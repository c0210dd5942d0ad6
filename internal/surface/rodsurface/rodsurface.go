// Package rodsurface implements surface.Surface on headless Chrome via go-rod.
// Every surface owns its own browser process and a single page.
package rodsurface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"framecast/internal/frame"
	"framecast/internal/pkg/logger"
	"framecast/internal/surface"
)

// Options configure the Chrome processes started by a Launcher.
type Options struct {
	// Bin is the browser executable; empty lets go-rod locate or fetch one.
	Bin       string
	Headless  bool
	GPU       bool
	NoSandbox bool
	// Flags are extra command line switches, without the leading dashes.
	Flags map[string]string
}

// Launcher starts one Chrome per surface.
type Launcher struct {
	opts Options
	log  *logger.Logger
}

// NewLauncher returns a launcher for opts.
func NewLauncher(opts Options, log *logger.Logger) *Launcher {
	return &Launcher{opts: opts, log: log.WithComponent("rodsurface")}
}

// Launch starts a browser sized to vp and opens a blank page.
func (l *Launcher) Launch(ctx context.Context, vp surface.Viewport) (surface.Surface, error) {
	if vp.Width == 0 || vp.Height == 0 {
		return nil, &surface.Error{Op: surface.OpLaunch, Err: fmt.Errorf("invalid viewport %dx%d", vp.Width, vp.Height)}
	}

	lc := launcher.New().
		Context(ctx).
		Headless(l.opts.Headless).
		NoSandbox(l.opts.NoSandbox).
		Set("window-size", fmt.Sprintf("%d,%d", vp.Width, vp.Height)).
		Set("hide-scrollbars")
	if l.opts.Bin != "" {
		lc = lc.Bin(l.opts.Bin)
	}
	if l.opts.GPU {
		lc = lc.Delete("disable-gpu")
	} else {
		lc = lc.Set("disable-gpu")
	}
	for k, v := range l.opts.Flags {
		k = strings.TrimLeft(k, "-")
		if v == "" {
			lc = lc.Set(flags.Flag(k))
		} else {
			lc = lc.Set(flags.Flag(k), v)
		}
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, &surface.Error{Op: surface.OpLaunch, Err: err}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		lc.Kill()
		lc.Cleanup()
		return nil, &surface.Error{Op: surface.OpLaunch, Err: fmt.Errorf("connect devtools: %w", err)}
	}
	// Drop the launch context so the browser outlives the launch timeout.
	browser = browser.Context(context.Background())

	s := &Surface{launcher: lc, browser: browser, vp: vp, log: l.log}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = s.Close()
		return nil, &surface.Error{Op: surface.OpLaunch, Err: fmt.Errorf("open page: %w", err)}
	}
	s.page = page

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(vp.Width),
		Height:            int(vp.Height),
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = s.Close()
		return nil, &surface.Error{Op: surface.OpLaunch, Err: fmt.Errorf("set viewport: %w", err)}
	}

	l.log.Debug("surface launched", "width", vp.Width, "height", vp.Height, "control_url", controlURL)
	return s, nil
}

// Surface is one Chrome page.
type Surface struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	vp       surface.Viewport
	log      *logger.Logger
	closed   bool
}

// Navigate loads url in the page.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return &surface.Error{Op: surface.OpNavigate, Err: err}
	}
	return nil
}

// WaitLoaded blocks until the page load event.
func (s *Surface) WaitLoaded(ctx context.Context) error {
	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		return &surface.Error{Op: surface.OpLoad, Err: err}
	}
	return nil
}

// Evaluate runs script as a page expression and returns its value as JSON.
func (s *Surface) Evaluate(ctx context.Context, script string, awaitPromise bool) (string, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    script,
		AwaitPromise:  awaitPromise,
		ReturnByValue: true,
	}.Call(s.page.Context(ctx))
	if err != nil {
		return "", &surface.Error{Op: surface.OpEvaluate, Err: err}
	}
	if res.ExceptionDetails != nil {
		msg := res.ExceptionDetails.Text
		if ex := res.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
			msg = ex.Description
		}
		return "", &surface.Error{Op: surface.OpEvaluate, Err: fmt.Errorf("script exception: %s", msg)}
	}
	if res.Result == nil {
		return "null", nil
	}
	return res.Result.Value.JSON("", ""), nil
}

// Capture screenshots the viewport and returns it as RGBA pixels.
func (s *Surface) Capture(ctx context.Context) (surface.Raster, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return surface.Raster{}, &surface.Error{Op: surface.OpCapture, Err: err}
	}

	raster, err := decodePNG(data)
	if err != nil {
		return surface.Raster{}, &surface.Error{Op: surface.OpCapture, Err: err}
	}
	return raster, nil
}

// Close shuts the page and the browser process. It is safe to call twice.
func (s *Surface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.browser.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.launcher.Kill()
	s.launcher.Cleanup()

	if firstErr != nil {
		s.log.Debug("surface close reported error", "error", firstErr.Error())
		return &surface.Error{Op: surface.OpClose, Err: firstErr}
	}
	return nil
}

func decodePNG(data []byte) (surface.Raster, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return surface.Raster{}, fmt.Errorf("decode screenshot: %w", err)
	}

	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	return surface.Raster{
		Pixels: rgba.Pix,
		Format: frame.RGBA,
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
	}, nil
}
