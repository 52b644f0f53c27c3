// Package encode converts raw captured frames into the compact color
// representation carried on the wire.
package encode

import (
	"errors"
	"fmt"
	"image"
)

// ErrInvalidFrameGeometry is returned when a raw frame's dimensions do not
// match the configured resolution.
var ErrInvalidFrameGeometry = errors.New("invalid frame geometry")

// Mode selects the color fidelity of encoded frames. A frame batch never
// mixes modes; the mode is fixed for the lifetime of the producer.
type Mode int

const (
	// FullColor encodes each pixel as three independent 8-bit channels
	FullColor Mode = iota
	// CompressedColor packs each pixel into 12 bits (4 bits per channel),
	// halving payload size at the cost of color banding
	CompressedColor
)

// ModeFor maps the compressed_colors configuration flag to a Mode
func ModeFor(compressed bool) Mode {
	if compressed {
		return CompressedColor
	}
	return FullColor
}

// String returns a human-readable mode name
func (m Mode) String() string {
	if m == CompressedColor {
		return "compressed"
	}
	return "full"
}

// Color is one encoded pixel. FullColor packs r<<16|g<<8|b; CompressedColor
// packs the high nibbles as r4<<8|g4<<4|b4.
type Color uint32

// Pack encodes 8-bit channels into a Color under this mode
func (m Mode) Pack(r, g, b uint8) Color {
	if m == CompressedColor {
		return Color(uint32(r>>4)<<8 | uint32(g>>4)<<4 | uint32(b>>4))
	}
	return Color(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// Channels reconstructs approximate 8-bit channels from a Color. FullColor is
// exact; CompressedColor expands each nibble across the full channel range,
// keeping the reconstruction error within 1/16 of the range per channel.
func (m Mode) Channels(c Color) (r, g, b uint8) {
	if m == CompressedColor {
		rn := uint8(c >> 8 & 0xf)
		gn := uint8(c >> 4 & 0xf)
		bn := uint8(c & 0xf)
		return rn<<4 | rn, gn<<4 | gn, bn<<4 | bn
	}
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Encoder converts raw frames at a fixed resolution into encoded pixel runs
type Encoder struct {
	width  int
	height int
	mode   Mode
}

// NewEncoder creates an encoder for the given resolution and mode
func NewEncoder(width, height int, mode Mode) *Encoder {
	return &Encoder{
		width:  width,
		height: height,
		mode:   mode,
	}
}

// Mode returns the encoder's color mode
func (e *Encoder) Mode() Mode {
	return e.mode
}

// Encode converts a raw RGBA frame into one encoded value per pixel in
// row-major order. The result length is always width*height. Encoding is pure:
// identical input yields identical output.
func (e *Encoder) Encode(img *image.RGBA) ([]Color, error) {
	bounds := img.Bounds()
	if bounds.Dx() != e.width || bounds.Dy() != e.height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrInvalidFrameGeometry, bounds.Dx(), bounds.Dy(), e.width, e.height)
	}

	pixels := make([]Color, 0, e.width*e.height)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := 0; x < e.width; x++ {
			i := x * 4
			pixels = append(pixels, e.mode.Pack(row[i], row[i+1], row[i+2]))
		}
	}
	return pixels, nil
}

// AppendFloats appends the wire representation of an encoded pixel run to dst:
// one normalized (r, g, b, 1) quadruple per pixel, in reverse pixel order. The
// polling client renders from the tail of the array, so the frame is emitted
// back to front. FullColor normalizes over 255, CompressedColor over 15.
func AppendFloats(dst []float64, pixels []Color, mode Mode) []float64 {
	for i := len(pixels) - 1; i >= 0; i-- {
		c := pixels[i]
		if mode == CompressedColor {
			dst = append(dst,
				float64(c>>8&0xf)/15,
				float64(c>>4&0xf)/15,
				float64(c&0xf)/15,
				1,
			)
		} else {
			dst = append(dst,
				float64(c>>16&0xff)/255,
				float64(c>>8&0xff)/255,
				float64(c&0xff)/255,
				1,
			)
		}
	}
	return dst
}
