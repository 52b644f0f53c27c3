package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/framepoll/internal/logger"
	"gopkg.in/yaml.v3"
)

// MaxPollRate is the maximum number of polls per second a single client can
// issue over the transport. Any delivered fps above FrameGroups*MaxPollRate is
// unreachable and rejected at startup.
const MaxPollRate = 8

// ErrInvalidConfiguration is returned by Validate for configurations the
// server must refuse to start with.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config represents the streaming configuration
type Config struct {
	Port             int    `json:"port" yaml:"port"`
	FPS              int    `json:"fps" yaml:"fps"`
	Width            int    `json:"x_res" yaml:"x_res"`
	Height           int    `json:"y_res" yaml:"y_res"`
	CompressedColors bool   `json:"compressed_colors" yaml:"compressed_colors"`
	FrameGroups      int    `json:"frame_groups" yaml:"frame_groups"`
	FrameSkip        int    `json:"frame_skip" yaml:"frame_skip"`
	FrameStart       int    `json:"frame_start" yaml:"frame_start"`
	VideoStreaming   bool   `json:"video_streaming" yaml:"video_streaming"`
	VideoPath        string `json:"video_path" yaml:"video_path"`
	SpeedMultiplier  int    `json:"speed_multiplier" yaml:"speed_multiplier"`
	LogLevel         string `json:"log_level" yaml:"log_level"`
}

// Validate checks the configuration before the producer is allowed to start.
// All violations are wrapped with ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, c.Port)
	}
	if c.FPS < 1 {
		return fmt.Errorf("%w: fps must be at least 1, got %d", ErrInvalidConfiguration, c.FPS)
	}
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("%w: resolution %dx%d must be positive", ErrInvalidConfiguration, c.Width, c.Height)
	}
	if c.FrameGroups < 1 {
		return fmt.Errorf("%w: frame_groups must be at least 1, got %d", ErrInvalidConfiguration, c.FrameGroups)
	}
	if c.FPS > c.FrameGroups*MaxPollRate {
		return fmt.Errorf("%w: fps %d exceeds frame_groups %d x %d poll ceiling",
			ErrInvalidConfiguration, c.FPS, c.FrameGroups, MaxPollRate)
	}
	if c.FrameSkip < 0 {
		return fmt.Errorf("%w: frame_skip must not be negative, got %d", ErrInvalidConfiguration, c.FrameSkip)
	}
	if c.FrameStart < 0 {
		return fmt.Errorf("%w: frame_start must not be negative, got %d", ErrInvalidConfiguration, c.FrameStart)
	}
	if c.SpeedMultiplier < 1 {
		return fmt.Errorf("%w: speed_multiplier must be at least 1, got %d", ErrInvalidConfiguration, c.SpeedMultiplier)
	}
	if c.VideoStreaming && c.VideoPath == "" {
		return fmt.Errorf("%w: video_streaming requires video_path", ErrInvalidConfiguration)
	}
	return nil
}

// BufferDepth returns the ring buffer capacity for this configuration. It
// always holds at least one full frame group so a batch can be assembled from
// a single snapshot, with headroom for clients polling behind the producer.
func (c *Config) BufferDepth() int {
	depth := 4 * c.FrameGroups
	if depth < 16 {
		depth = 16
	}
	return depth
}

// Resolution returns the configured resolution as a "WxH" string
func (c *Config) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// Manager handles loading, validating and saving configuration
type Manager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

// NewManager creates a config manager, loading the config file at configPath
// (or the default location when empty). A missing file is created with
// defaults.
func NewManager(configPath string) (*Manager, error) {
	actualConfigPath := configPath
	if actualConfigPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		actualConfigPath = filepath.Join(home, ".config", "framepoll", "config.yaml")
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("fps", m.config.FPS).
		Str("resolution", m.config.Resolution()).
		Bool("video", m.config.VideoStreaming).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Port:            5000,
		FPS:             8,
		Width:           400,
		Height:          225,
		FrameGroups:     1,
		FrameSkip:       0,
		FrameStart:      0,
		SpeedMultiplier: 1,
		LogLevel:        "info",
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = cfg
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// GetConfigPath returns the path of the backing config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update validates and replaces the configuration, then persists it. The new
// configuration takes effect on the next server start.
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetPort overrides the server port
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Port = port
}

// SetLogLevel overrides the log level
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}
