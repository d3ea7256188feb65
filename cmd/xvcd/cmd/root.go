package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "xvcd",
	Short: "Xilinx Virtual Cable daemon",
	Long: `xvcd serves the XVC 1.0 protocol over TCP, letting remote tools such
as Vivado drive a local JTAG interface as if it were plugged in directly.

Examples:
  xvcd serve                                  # Autodetect a backend, listen on :2542
  xvcd serve --backend uio --device /dev/uio0 # Serve a memory-mapped debug bridge
  xvcd serve --backend sim                    # Hardware-free loopback for testing
  xvcd probe localhost:2542                   # Query a running server`,
	Version: "1.0.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global flags. The level
// flag wins over the XVCD_LOG_LEVEL environment variable.
func newLogger() (zerolog.Logger, error) {
	level := logLevel
	if level == "" {
		level = os.Getenv("XVCD_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("bad log level %q: %w", level, err)
	}

	var log zerolog.Logger
	if logJSON {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log.Level(lvl).With().Timestamp().Logger(), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (trace, debug, info, warn, error); overrides XVCD_LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"emit structured JSON logs instead of console output")
}
