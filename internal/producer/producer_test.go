package producer

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/framepoll/internal/buffer"
	"github.com/bryanchriswhite/framepoll/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource produces solid frames, optionally failing on demand
type fakeSource struct {
	mu     sync.Mutex
	width  int
	height int
	err    error
	calls  int
}

func (f *fakeSource) Start() error { return nil }
func (f *fakeSource) Stop() error  { return nil }
func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) NextFrame() (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, f.width, f.height)), nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.FPS = 64
	cfg.FrameGroups = 8
	cfg.Width = 4
	cfg.Height = 4
	return cfg
}

func TestProducerAppendsFramesAtCadence(t *testing.T) {
	cfg := testConfig()
	source := &fakeSource{width: 4, height: 4}
	ring := buffer.NewRing(cfg.BufferDepth())

	p := New(cfg, source, ring)
	require.NoError(t, p.Start())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return p.FramesProduced() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, p.Degraded())
	assert.GreaterOrEqual(t, ring.NewestSequence(), uint64(3))
}

func TestProducerDoubleStartFails(t *testing.T) {
	cfg := testConfig()
	source := &fakeSource{width: 4, height: 4}
	p := New(cfg, source, buffer.NewRing(cfg.BufferDepth()))

	require.NoError(t, p.Start())
	defer p.Stop()
	require.Error(t, p.Start())
}

func TestProducerDegradesAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	source := &fakeSource{width: 4, height: 4, err: errors.New("capture boom")}
	ring := buffer.NewRing(cfg.BufferDepth())

	p := New(cfg, source, ring)
	require.NoError(t, p.Start())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return p.Degraded()
	}, 2*time.Second, 10*time.Millisecond)

	// No frames were published while the source failed
	assert.Equal(t, uint64(0), ring.NewestSequence())

	// A successful tick clears the degraded state
	source.setErr(nil)
	require.Eventually(t, func() bool {
		return !p.Degraded() && p.FramesProduced() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProducerSkipsTicksOnGeometryMismatch(t *testing.T) {
	cfg := testConfig()
	// Source frames don't match the configured resolution
	source := &fakeSource{width: 7, height: 3}
	ring := buffer.NewRing(cfg.BufferDepth())

	p := New(cfg, source, ring)
	require.NoError(t, p.Start())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return p.Degraded()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, ring.Len())
}

func TestVideoCadenceUsesSpeedMultiplier(t *testing.T) {
	cfg := testConfig()
	cfg.VideoStreaming = true
	cfg.VideoPath = "movie.mp4"
	cfg.SpeedMultiplier = 4

	p := New(cfg, &fakeSource{width: 4, height: 4}, buffer.NewRing(cfg.BufferDepth()))
	assert.Equal(t, time.Second/time.Duration(cfg.FPS*4), p.period)
}
