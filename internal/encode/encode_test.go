package encode

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 37),
				G: uint8(y * 53),
				B: uint8((x + y) * 11),
				A: 255,
			})
		}
	}
	return img
}

func TestEncodeGeometryMismatch(t *testing.T) {
	enc := NewEncoder(4, 4, FullColor)

	_, err := enc.Encode(testImage(3, 4))
	require.ErrorIs(t, err, ErrInvalidFrameGeometry)

	_, err = enc.Encode(testImage(4, 3))
	require.ErrorIs(t, err, ErrInvalidFrameGeometry)
}

func TestEncodeRowMajorOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	enc := NewEncoder(2, 2, FullColor)
	pixels, err := enc.Encode(img)
	require.NoError(t, err)
	require.Len(t, pixels, 4)

	assert.Equal(t, FullColor.Pack(255, 0, 0), pixels[0])
	assert.Equal(t, FullColor.Pack(0, 255, 0), pixels[1])
	assert.Equal(t, FullColor.Pack(0, 0, 255), pixels[2])
	assert.Equal(t, FullColor.Pack(255, 255, 255), pixels[3])
}

func TestEncodeDeterministic(t *testing.T) {
	img := testImage(8, 6)
	enc := NewEncoder(8, 6, CompressedColor)

	first, err := enc.Encode(img)
	require.NoError(t, err)
	second, err := enc.Encode(img)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFullColorRoundTrip(t *testing.T) {
	for _, c := range []struct{ r, g, b uint8 }{
		{0, 0, 0}, {255, 255, 255}, {1, 2, 3}, {200, 100, 50}, {17, 255, 0},
	} {
		r, g, b := FullColor.Channels(FullColor.Pack(c.r, c.g, c.b))
		assert.Equal(t, c.r, r)
		assert.Equal(t, c.g, g)
		assert.Equal(t, c.b, b)
	}
}

func TestCompressedRoundTripWithinTolerance(t *testing.T) {
	// Reconstruction error must stay within 1/16 of the channel range
	const tolerance = 16

	for _, c := range []struct{ r, g, b uint8 }{
		{0, 0, 0}, {255, 255, 255}, {15, 16, 17}, {200, 100, 50}, {127, 128, 129},
	} {
		r, g, b := CompressedColor.Channels(CompressedColor.Pack(c.r, c.g, c.b))
		assert.InDelta(t, c.r, r, tolerance)
		assert.InDelta(t, c.g, g, tolerance)
		assert.InDelta(t, c.b, b, tolerance)
	}
}

func TestCompressedPackingIs12Bit(t *testing.T) {
	c := CompressedColor.Pack(255, 255, 255)
	assert.Equal(t, Color(0xfff), c)

	c = CompressedColor.Pack(0x12, 0x34, 0x56)
	assert.Equal(t, Color(0x135), c)
}

func TestAppendFloatsFullColor(t *testing.T) {
	pixels := []Color{
		FullColor.Pack(255, 0, 0),
		FullColor.Pack(0, 255, 0),
	}

	floats := AppendFloats(nil, pixels, FullColor)
	require.Len(t, floats, 8)

	// Pixel order is reversed on the wire: the green pixel comes first
	assert.Equal(t, []float64{0, 1, 0, 1}, floats[:4])
	assert.Equal(t, []float64{1, 0, 0, 1}, floats[4:])
}

func TestAppendFloatsCompressedNormalizesOverNibbles(t *testing.T) {
	pixels := []Color{CompressedColor.Pack(255, 0, 16)}

	floats := AppendFloats(nil, pixels, CompressedColor)
	require.Len(t, floats, 4)

	assert.Equal(t, 1.0, floats[0])
	assert.Equal(t, 0.0, floats[1])
	assert.Equal(t, 1.0/15, floats[2])
	assert.Equal(t, 1.0, floats[3])
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, CompressedColor, ModeFor(true))
	assert.Equal(t, FullColor, ModeFor(false))
}
