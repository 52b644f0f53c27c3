package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/framepoll/internal/api"
	"github.com/bryanchriswhite/framepoll/internal/buffer"
	"github.com/bryanchriswhite/framepoll/internal/capture"
	"github.com/bryanchriswhite/framepoll/internal/config"
	"github.com/bryanchriswhite/framepoll/internal/logger"
	"github.com/bryanchriswhite/framepoll/internal/output"
	"github.com/bryanchriswhite/framepoll/internal/producer"
	"github.com/bryanchriswhite/framepoll/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the framepoll server",
	Long: `Start the framepoll streaming server.

The server captures frames at the configured fps (or decodes a video file)
and answers client polls on the configured port.`,
	Example: `  # Start server with the saved configuration
  framepoll serve

  # Start server on a custom port
  framepoll serve --port 5050

  # Start with specific config file
  framepoll serve --config /path/to/config.yaml

  # Start with debug logging
  framepoll serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("port") {
		if port := viper.GetInt("port"); port > 0 {
			configMgr.SetPort(port)
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if logLevel := viper.GetString("log_level"); logLevel != "" {
			configMgr.SetLogLevel(logLevel)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")

	// A configuration the transport cannot deliver must never reach the
	// producer
	if err := cfg.Validate(); err != nil {
		return err
	}

	source, err := capture.NewSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize frame source: %w", err)
	}

	ring := buffer.NewRing(cfg.BufferDepth())

	preview := output.NewMJPEGOutput()
	if err := preview.Start(); err != nil {
		return fmt.Errorf("failed to start preview output: %w", err)
	}
	defer preview.Stop()

	prod := producer.New(cfg, source, ring)
	prod.SetPreview(preview)
	if err := prod.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}
	defer prod.Stop()

	sessions := session.NewTable(session.DefaultIdleTimeout)
	sessions.Start()
	defer sessions.Stop()

	server := api.NewServer(configMgr, ring, sessions, prod, preview)

	go func() {
		if err := server.Start(cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("resolution", cfg.Resolution()).
		Int("fps", cfg.FPS).
		Int("frame_groups", cfg.FrameGroups).
		Str("source", source.Name()).
		Msg("framepoll is running, press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully")
	return nil
}
