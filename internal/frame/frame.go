// Package frame holds the value types that flow through the capture pipeline:
// half-open frame ranges and captured raster frames.
package frame

import (
	"fmt"
)

// Format is the channel layout of a captured pixel buffer.
type Format uint8

const (
	// RGBA is 8-bit red, green, blue, alpha.
	RGBA Format = iota
	// BGRA is 8-bit blue, green, red, alpha.
	BGRA
)

// BytesPerPixel returns the size of one pixel in this format.
func (f Format) BytesPerPixel() int {
	return 4
}

// String returns the ffmpeg pixel format name.
func (f Format) String() string {
	switch f {
	case RGBA:
		return "rgba"
	case BGRA:
		return "bgra"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Captured is one rendered frame.
//
// A Captured frame is owned by the capture worker that produced it until it
// is sent to the aggregation sink; after the send, ownership moves to the
// sink and then the encoder. Pixels must not be modified after capture.
type Captured struct {
	Index  uint32
	Pixels []byte
	Format Format
	Width  uint32
	Height uint32
}

// ExpectedSize is the pixel buffer length implied by the frame dimensions.
func (c Captured) ExpectedSize() int {
	return int(c.Width) * int(c.Height) * c.Format.BytesPerPixel()
}
