// Package buffer holds the most recent encoded frames in a single-writer,
// multi-reader ring keyed by sequence number.
package buffer

import (
	"errors"
	"image"
	"sync"

	"github.com/bryanchriswhite/framepoll/internal/encode"
)

// ErrResynchronize signals that a reader's position has been evicted from the
// ring and the client must restart from the newest frame. It is a protocol
// outcome, not a failure.
var ErrResynchronize = errors.New("resynchronize from newest frame")

// Frame is one encoded frame plus its sequence number. Frames are immutable
// after Append: the pixel slice is never written again once published.
type Frame struct {
	Sequence uint64
	Width    int
	Height   int
	Mode     encode.Mode
	Pixels   []encode.Color
}

// Image reconstructs the frame as an RGBA image, used by the MJPEG preview
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, c := range f.Pixels {
		r, g, b := f.Mode.Channels(c)
		o := i * 4
		img.Pix[o] = r
		img.Pix[o+1] = g
		img.Pix[o+2] = b
		img.Pix[o+3] = 255
	}
	return img
}

// Ring is a bounded ring of the last N frames, ordered by sequence number.
// Sequence numbers start at 1 and increase by exactly 1 per appended frame.
// Append is writer-only; ReadRange and Latest may run concurrently with
// appends and copy frame values out under a read lock, so a reader never
// observes a partially written frame and never holds the writer up beyond the
// copy window.
type Ring struct {
	mu       sync.RWMutex
	frames   []Frame
	capacity int
	nextSeq  uint64
}

// NewRing creates a ring retaining the last capacity frames. The capacity must
// hold at least one full frame group; callers size it via Config.BufferDepth.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
		nextSeq:  1,
	}
}

// Append publishes a new frame, assigning it the next sequence number and
// evicting the oldest frame once capacity is exceeded.
func (r *Ring) Append(width, height int, mode encode.Mode, pixels []encode.Color) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := Frame{
		Sequence: r.nextSeq,
		Width:    width,
		Height:   height,
		Mode:     mode,
		Pixels:   pixels,
	}
	r.nextSeq++

	if len(r.frames) == r.capacity {
		copy(r.frames, r.frames[1:])
		r.frames[len(r.frames)-1] = frame
	} else {
		r.frames = append(r.frames, frame)
	}
	return frame
}

// ReadRange returns up to maxCount frames with sequence > fromSeqExclusive,
// oldest first. An empty slice means the reader is caught up. ErrResynchronize
// means fromSeqExclusive has already been evicted and the reader must restart
// from the newest frame.
func (r *Ring) ReadRange(fromSeqExclusive uint64, maxCount int) ([]Frame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.frames) == 0 || maxCount <= 0 {
		return nil, nil
	}

	oldest := r.frames[0].Sequence
	if fromSeqExclusive+1 < oldest {
		return nil, ErrResynchronize
	}

	newest := r.frames[len(r.frames)-1].Sequence
	if fromSeqExclusive >= newest {
		return nil, nil
	}

	start := int(fromSeqExclusive + 1 - oldest)
	end := start + maxCount
	if end > len(r.frames) {
		end = len(r.frames)
	}

	out := make([]Frame, end-start)
	copy(out, r.frames[start:end])
	return out, nil
}

// Latest returns the newest up-to-n frames, oldest first
func (r *Ring) Latest(n int) []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || len(r.frames) == 0 {
		return nil
	}
	if n > len(r.frames) {
		n = len(r.frames)
	}

	out := make([]Frame, n)
	copy(out, r.frames[len(r.frames)-n:])
	return out
}

// Len returns the number of retained frames
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// NewestSequence returns the sequence number of the newest frame, or 0 when
// nothing has been produced yet
func (r *Ring) NewestSequence() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.frames) == 0 {
		return 0
	}
	return r.frames[len(r.frames)-1].Sequence
}
