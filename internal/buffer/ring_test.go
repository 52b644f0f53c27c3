package buffer

import (
	"testing"

	"github.com/bryanchriswhite/framepoll/internal/encode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(r *Ring, n int) {
	for i := 0; i < n; i++ {
		r.Append(2, 2, encode.FullColor, []encode.Color{
			encode.FullColor.Pack(uint8(i), 0, 0), 0, 0, 0,
		})
	}
}

func sequences(frames []Frame) []uint64 {
	seqs := make([]uint64, 0, len(frames))
	for _, f := range frames {
		seqs = append(seqs, f.Sequence)
	}
	return seqs
}

func TestAppendAssignsMonotonicSequences(t *testing.T) {
	r := NewRing(8)
	appendN(r, 3)

	frames, err := r.ReadRange(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, sequences(frames))
	assert.Equal(t, uint64(3), r.NewestSequence())
}

func TestReadRangeNeverReturnsOutOfOrder(t *testing.T) {
	r := NewRing(16)
	appendN(r, 16)

	for from := uint64(0); from < 16; from++ {
		frames, err := r.ReadRange(from, 16)
		require.NoError(t, err)
		for i := 1; i < len(frames); i++ {
			assert.Equal(t, frames[i-1].Sequence+1, frames[i].Sequence)
		}
		if len(frames) > 0 {
			assert.Equal(t, from+1, frames[0].Sequence)
		}
	}
}

func TestReadRangeTruncatesToAvailable(t *testing.T) {
	r := NewRing(8)
	appendN(r, 3)

	frames, err := r.ReadRange(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, sequences(frames))
}

func TestReadRangeHonorsMaxCount(t *testing.T) {
	r := NewRing(8)
	appendN(r, 6)

	frames, err := r.ReadRange(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, sequences(frames))
}

func TestReadRangeCaughtUpIsEmptyNotError(t *testing.T) {
	r := NewRing(8)
	appendN(r, 3)

	frames, err := r.ReadRange(3, 5)
	require.NoError(t, err)
	assert.Empty(t, frames)

	// Ahead of the newest frame is also just "caught up"
	frames, err = r.ReadRange(99, 5)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestReadRangeEvictedPositionSignalsResynchronize(t *testing.T) {
	r := NewRing(4)
	appendN(r, 10) // retained: 7..10

	_, err := r.ReadRange(2, 4)
	require.ErrorIs(t, err, ErrResynchronize)

	// The oldest retained frame is still readable without resync
	frames, err := r.ReadRange(6, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 8, 9, 10}, sequences(frames))
}

func TestEvictionKeepsCapacityNewestFrames(t *testing.T) {
	r := NewRing(4)
	appendN(r, 10)

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, uint64(10), r.NewestSequence())
}

func TestLatestReturnsNewestOldestFirst(t *testing.T) {
	r := NewRing(8)
	appendN(r, 5)

	assert.Equal(t, []uint64{4, 5}, sequences(r.Latest(2)))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, sequences(r.Latest(10)))
	assert.Empty(t, r.Latest(0))
}

func TestEmptyRing(t *testing.T) {
	r := NewRing(4)

	frames, err := r.ReadRange(0, 4)
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Empty(t, r.Latest(4))
	assert.Equal(t, uint64(0), r.NewestSequence())
	assert.Equal(t, 0, r.Len())
}

func TestFrameImageRoundTrip(t *testing.T) {
	r := NewRing(4)
	pixels := []encode.Color{
		encode.FullColor.Pack(255, 0, 0),
		encode.FullColor.Pack(0, 255, 0),
		encode.FullColor.Pack(0, 0, 255),
		encode.FullColor.Pack(10, 20, 30),
	}
	frame := r.Append(2, 2, encode.FullColor, pixels)

	img := frame.Image()
	require.Equal(t, 2, img.Bounds().Dx())
	require.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, uint8(255), img.Pix[0])
	assert.Equal(t, uint8(255), img.Pix[5]) // second pixel, green channel
	assert.Equal(t, uint8(30), img.Pix[14]) // fourth pixel, blue channel
}
