package output

import (
	"image"
)

// Output defines the interface for preview stream outputs
type Output interface {
	// Start initializes the output
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame *image.RGBA) error

	// Name returns the output type name
	Name() string

	// IsRunning returns true if the output is active
	IsRunning() bool
}
