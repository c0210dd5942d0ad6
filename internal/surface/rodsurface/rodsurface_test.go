package rodsurface

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"framecast/internal/frame"
	"framecast/internal/pkg/logger"
	"framecast/internal/surface"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(2, 1, color.NRGBA{B: 255, A: 255})

	raster, err := decodePNG(encodePNG(t, src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if raster.Width != 3 || raster.Height != 2 || raster.Format != frame.RGBA {
		t.Fatalf("unexpected raster header %+v", raster)
	}
	if len(raster.Pixels) != 3*2*4 {
		t.Fatalf("unexpected pixel length %d", len(raster.Pixels))
	}
	if got := raster.Pixels[0:4]; !bytes.Equal(got, []byte{255, 0, 0, 255}) {
		t.Errorf("unexpected first pixel %v", got)
	}
	last := raster.Pixels[len(raster.Pixels)-4:]
	if !bytes.Equal(last, []byte{0, 0, 255, 255}) {
		t.Errorf("unexpected last pixel %v", last)
	}
}

func TestDecodePNGInvalid(t *testing.T) {
	if _, err := decodePNG([]byte("not a png")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLaunchRejectsEmptyViewport(t *testing.T) {
	l := NewLauncher(Options{Headless: true}, logger.Discard())

	_, err := l.Launch(context.Background(), surface.Viewport{Width: 0, Height: 360})

	var se *surface.Error
	if !errors.As(err, &se) || se.Op != surface.OpLaunch {
		t.Fatalf("expected launch error, got %v", err)
	}
}
