package capture

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"

	"github.com/bryanchriswhite/framepoll/internal/logger"
)

// VideoSource decodes a video file into raw RGBA frames via a gst-launch-1.0
// subprocess. Running gst-launch as a separate process avoids CGO bindings;
// frames are read from the pipeline's stdout one at a time, so pipe
// backpressure paces the decoder. When the file is exhausted the pipeline is
// restarted from startFrame, making the source an effectively infinite stream.
type VideoSource struct {
	path       string
	width      int
	height     int
	startFrame int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	reader  *bufio.Reader
	running bool
}

// NewVideoSource creates a video file source producing frames at the given
// resolution, starting playback at startFrame
func NewVideoSource(path string, width, height, startFrame int) *VideoSource {
	return &VideoSource{
		path:       path,
		width:      width,
		height:     height,
		startFrame: startFrame,
	}
}

// Start launches the decode pipeline and seeks past the start offset
func (v *VideoSource) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return fmt.Errorf("video source already running")
	}

	if err := v.launch(); err != nil {
		return err
	}
	v.running = true

	if err := v.skipFrames(v.startFrame); err != nil {
		logger.WithComponent("video-source").Warn().
			Err(err).
			Int("start_frame", v.startFrame).
			Msg("Failed to seek to start frame, playing from beginning")
	}

	logger.WithComponent("video-source").Info().
		Str("path", v.path).
		Int("pid", v.cmd.Process.Pid).
		Int("start_frame", v.startFrame).
		Msg("Video decode subprocess started")
	return nil
}

// Stop terminates the decode pipeline
func (v *VideoSource) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return nil
	}
	v.running = false
	return v.teardown()
}

// Name returns the source name
func (v *VideoSource) Name() string {
	return "video file"
}

// NextFrame reads one decoded frame, restarting the pipeline from startFrame
// when the file is exhausted
func (v *VideoSource) NextFrame() (*image.RGBA, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return nil, fmt.Errorf("video source not running")
	}

	frame, err := v.readFrame()
	if err == nil {
		return frame, nil
	}
	if err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	// End of file: loop back to the start offset
	logger.WithComponent("video-source").Info().
		Str("path", v.path).
		Msg("Video exhausted, restarting from start frame")

	if err := v.teardown(); err != nil {
		logger.WithComponent("video-source").Warn().Err(err).Msg("Failed to stop exhausted pipeline")
	}
	if err := v.launch(); err != nil {
		return nil, fmt.Errorf("failed to restart video pipeline: %w", err)
	}
	if err := v.skipFrames(v.startFrame); err != nil {
		return nil, fmt.Errorf("failed to seek restarted pipeline: %w", err)
	}

	frame, err = v.readFrame()
	if err != nil {
		return nil, fmt.Errorf("failed to read frame after restart: %w", err)
	}
	return frame, nil
}

// launch starts the gst-launch subprocess. Caller holds the lock.
func (v *VideoSource) launch() error {
	pipelineStr := fmt.Sprintf(
		"filesrc location=%q ! "+
			"decodebin ! "+
			"videoconvert ! "+
			"videoscale ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d ! "+
			"fdsink fd=1 sync=false",
		v.path, v.width, v.height,
	)

	logger.WithComponent("video-source").Debug().
		Str("pipeline", pipelineStr).
		Msg("Starting decode pipeline")

	// Use sh -c to properly parse the pipeline string with ! separators
	v.cmd = exec.Command("sh", "-c", "gst-launch-1.0 -q "+pipelineStr)

	stdout, err := v.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	v.stdout = stdout
	v.reader = bufio.NewReaderSize(stdout, v.width*v.height*4)

	if err := v.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gst-launch: %w", err)
	}
	return nil
}

// teardown kills the subprocess and reaps it. Caller holds the lock.
func (v *VideoSource) teardown() error {
	if v.cmd == nil || v.cmd.Process == nil {
		return nil
	}
	v.stdout.Close()
	if err := v.cmd.Process.Kill(); err != nil {
		return err
	}
	v.cmd.Wait()
	v.cmd = nil
	return nil
}

// readFrame reads exactly one raw RGBA frame from the pipeline
func (v *VideoSource) readFrame() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	if _, err := io.ReadFull(v.reader, img.Pix); err != nil {
		return nil, err
	}
	return img, nil
}

// skipFrames discards n decoded frames. Caller holds the lock.
func (v *VideoSource) skipFrames(n int) error {
	frameSize := int64(v.width * v.height * 4)
	for i := 0; i < n; i++ {
		if _, err := io.CopyN(io.Discard, v.reader, frameSize); err != nil {
			return err
		}
	}
	return nil
}
