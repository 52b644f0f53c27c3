package capture

import (
	"image"

	"github.com/bryanchriswhite/framepoll/internal/config"
)

// Source defines the interface for raw frame sources
type Source interface {
	// Start initializes the source and any required resources
	Start() error

	// Stop releases resources and stops any background processes
	Stop() error

	// NextFrame produces the next raw frame at the configured resolution.
	// The producer calls this once per tick.
	NextFrame() (*image.RGBA, error)

	// Name returns a human-readable name for this source
	Name() string
}

// NewSource creates the frame source selected by the configuration: a video
// file decoder in video mode, the X11 screen capturer otherwise.
func NewSource(cfg *config.Config) (Source, error) {
	if cfg.VideoStreaming {
		return NewVideoSource(cfg.VideoPath, cfg.Width, cfg.Height, cfg.FrameStart), nil
	}
	return NewScreenSource(cfg.Width, cfg.Height)
}
