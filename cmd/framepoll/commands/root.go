package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "framepoll",
		Short: "framepoll - frame streaming for rate-limited polling clients",
		Long: `framepoll captures the screen or decodes a video file and serves the
frames to polling clients over plain HTTP, batching multiple frames per
response to stay under the clients' request-rate ceiling.

Features:
  • X11 screen capture or video file playback
  • Full or compressed (12-bit) color encoding
  • Frame batching with per-client continuity tracking
  • Live MJPEG preview of the outgoing stream
  • REST API and websocket stats for configuration front-ends
  • Persistent configuration`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/framepoll/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 5000)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
