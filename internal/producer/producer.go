// Package producer drives a frame source at a fixed cadence, encoding each
// frame and publishing it to the ring buffer.
package producer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/framepoll/internal/buffer"
	"github.com/bryanchriswhite/framepoll/internal/capture"
	"github.com/bryanchriswhite/framepoll/internal/config"
	"github.com/bryanchriswhite/framepoll/internal/encode"
	"github.com/bryanchriswhite/framepoll/internal/logger"
	"github.com/bryanchriswhite/framepoll/internal/output"
)

// degradedThreshold is the number of consecutive tick failures after which the
// producer is marked degraded
const degradedThreshold = 3

// Producer pulls one raw frame per tick from its source, encodes it and
// appends it to the ring. A tick that overruns the period is skipped rather
// than queued, so there is never a backlog of stale ticks.
type Producer struct {
	source  capture.Source
	encoder *encode.Encoder
	ring    *buffer.Ring
	period  time.Duration
	width   int
	height  int

	mu      sync.Mutex
	preview output.Output
	running bool

	stopChan chan struct{}
	done     chan struct{}

	consecutiveFailures int
	degraded            atomic.Bool
	framesProduced      atomic.Uint64
}

// New creates a producer for the given configuration. In video mode the
// cadence is targetFps scaled by the speed multiplier.
func New(cfg *config.Config, source capture.Source, ring *buffer.Ring) *Producer {
	effectiveFps := cfg.FPS
	if cfg.VideoStreaming {
		effectiveFps = cfg.FPS * cfg.SpeedMultiplier
	}

	return &Producer{
		source:  source,
		encoder: encode.NewEncoder(cfg.Width, cfg.Height, encode.ModeFor(cfg.CompressedColors)),
		ring:    ring,
		period:  time.Second / time.Duration(effectiveFps),
		width:   cfg.Width,
		height:  cfg.Height,
	}
}

// SetPreview attaches an optional preview output. The producer writes the raw
// frame to it before encoding, outside all locks shared with the poll path.
func (p *Producer) SetPreview(out output.Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preview = out
}

// Start begins the cadence loop
func (p *Producer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("producer already running")
	}

	if err := p.source.Start(); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	p.running = true
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	go p.run()

	logger.WithComponent("producer").Info().
		Str("source", p.source.Name()).
		Str("mode", p.encoder.Mode().String()).
		Dur("period", p.period).
		Msg("Producer started")
	return nil
}

// Stop halts the cadence loop and releases the source
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	<-p.done
	if err := p.source.Stop(); err != nil {
		logger.WithComponent("producer").Warn().Err(err).Msg("Failed to stop source")
	}
	logger.WithComponent("producer").Info().
		Uint64("frames", p.framesProduced.Load()).
		Msg("Producer stopped")
}

// Degraded reports whether the producer has failed degradedThreshold or more
// consecutive ticks. Clients observe no new frames while degraded; they never
// see an error.
func (p *Producer) Degraded() bool {
	return p.degraded.Load()
}

// FramesProduced returns the number of frames appended so far
func (p *Producer) FramesProduced() uint64 {
	return p.framesProduced.Load()
}

// run is the cadence loop. The ticker drops ticks the loop is too slow to
// consume, which is exactly the drop-oldest-tick overrun policy.
func (p *Producer) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick produces one frame. Failures are logged and skipped; the tick never
// propagates an error to clients.
func (p *Producer) tick() {
	log := logger.WithComponent("producer")

	raw, err := p.source.NextFrame()
	if err != nil {
		p.recordFailure(fmt.Errorf("capture failed: %w", err))
		return
	}

	p.mu.Lock()
	preview := p.preview
	p.mu.Unlock()
	if preview != nil && preview.IsRunning() {
		if err := preview.WriteFrame(raw); err != nil {
			log.Debug().Err(err).Msg("Preview write failed")
		}
	}

	pixels, err := p.encoder.Encode(raw)
	if err != nil {
		p.recordFailure(fmt.Errorf("encode failed: %w", err))
		return
	}

	frame := p.ring.Append(p.width, p.height, p.encoder.Mode(), pixels)
	p.framesProduced.Add(1)

	if p.consecutiveFailures > 0 || p.degraded.Load() {
		log.Info().
			Uint64("sequence", frame.Sequence).
			Msg("Producer recovered")
	}
	p.consecutiveFailures = 0
	p.degraded.Store(false)
}

func (p *Producer) recordFailure(err error) {
	p.consecutiveFailures++
	log := logger.WithComponent("producer")
	log.Error().
		Err(err).
		Int("consecutive_failures", p.consecutiveFailures).
		Msg("Tick skipped")

	if p.consecutiveFailures >= degradedThreshold && !p.degraded.Load() {
		p.degraded.Store(true)
		log.Warn().
			Int("consecutive_failures", p.consecutiveFailures).
			Msg("Producer degraded, clients will see no new frames until recovery")
	}
}
