package cmd

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
	"github.com/OpenTraceLab/OpenTraceXVC/pkg/server"

	// USB probes work on every platform; register unconditionally.
	_ "github.com/OpenTraceLab/OpenTraceXVC/pkg/driver/cmsisdap"
)

var (
	listenAddr  string
	backendName string
	devicePath  string
	maxVector   int
	pollTimeout time.Duration
	rwTimeout   time.Duration
	tckClockHz  uint64
	maxBits     uint32
	configPath  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the XVC protocol on a TCP listener",
	Long: `Serve accepts XVC client connections and forwards their JTAG traffic
to one hardware backend. Without --backend the daemon probes for a
kernel XVC character device first, then for a UIO debug bridge.

Examples:
  xvcd serve
  xvcd serve --listen :2542 --backend kernel
  xvcd serve --backend uio --device /dev/uio0 --poll-timeout 5ms
  xvcd serve --backend cmsisdap --device 2e8a:000c
  xvcd serve --config /etc/xvcd.toml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", server.DefaultAddr,
		"TCP listen address")
	serveCmd.Flags().StringVarP(&backendName, "backend", "b", "",
		"hardware backend (kernel, uio, cmsisdap, sim); empty autodetects")
	serveCmd.Flags().StringVarP(&devicePath, "device", "d", "",
		"device node or probe address for the backend")
	serveCmd.Flags().IntVar(&maxVector, "max-vector", 0,
		"per-shift vector ceiling in bytes (default 10 MiB)")
	serveCmd.Flags().DurationVar(&pollTimeout, "poll-timeout", 0,
		"uio: how long to wait for a shift word to complete")
	serveCmd.Flags().DurationVar(&rwTimeout, "rw-timeout", 0,
		"socket read/write deadline (default 30s)")
	serveCmd.Flags().Uint64Var(&tckClockHz, "tck-clock", 0,
		"uio: source clock feeding the TCK divider in Hz (default 100 MHz)")
	serveCmd.Flags().Uint32Var(&maxBits, "max-bits", 0,
		"override the backend's per-shift capability")
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"TOML configuration file; explicit flags win over file values")
}

// fileConfig mirrors the serve flags in the TOML configuration file.
type fileConfig struct {
	Listen      string `toml:"listen"`
	Backend     string `toml:"backend"`
	Device      string `toml:"device"`
	MaxVector   int    `toml:"max_vector"`
	PollTimeout string `toml:"poll_timeout"`
	RWTimeout   string `toml:"rw_timeout"`
	TckClockHz  uint64 `toml:"tck_clock_hz"`
	MaxBits     uint32 `toml:"max_bits"`
}

// loadConfig overlays file values onto flags the user left untouched.
func loadConfig(cmd *cobra.Command) error {
	if configPath == "" {
		return nil
	}
	var fc fileConfig
	md, err := toml.DecodeFile(configPath, &fc)
	if err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config %s: unknown key %q", configPath, undecoded[0].String())
	}

	flags := cmd.Flags()
	if md.IsDefined("listen") && !flags.Changed("listen") {
		listenAddr = fc.Listen
	}
	if md.IsDefined("backend") && !flags.Changed("backend") {
		backendName = fc.Backend
	}
	if md.IsDefined("device") && !flags.Changed("device") {
		devicePath = fc.Device
	}
	if md.IsDefined("max_vector") && !flags.Changed("max-vector") {
		maxVector = fc.MaxVector
	}
	if md.IsDefined("poll_timeout") && !flags.Changed("poll-timeout") {
		if pollTimeout, err = time.ParseDuration(fc.PollTimeout); err != nil {
			return fmt.Errorf("config %s: poll_timeout: %w", configPath, err)
		}
	}
	if md.IsDefined("rw_timeout") && !flags.Changed("rw-timeout") {
		if rwTimeout, err = time.ParseDuration(fc.RWTimeout); err != nil {
			return fmt.Errorf("config %s: rw_timeout: %w", configPath, err)
		}
	}
	if md.IsDefined("tck_clock_hz") && !flags.Changed("tck-clock") {
		tckClockHz = fc.TckClockHz
	}
	if md.IsDefined("max_bits") && !flags.Changed("max-bits") {
		maxBits = fc.MaxBits
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	name, path := backendName, devicePath
	if name == "" {
		name, path, err = detectBackend()
		if err != nil {
			return err
		}
		if devicePath != "" {
			path = devicePath
		}
		log.Info().Str("backend", name).Str("device", path).Msg("autodetected backend")
	}

	drv, err := driver.Open(name, driver.Config{
		Path:        path,
		PollTimeout: pollTimeout,
		MaxBits:     maxBits,
		TckClockHz:  tckClockHz,
		Logger:      &log,
	})
	if err != nil {
		return err
	}
	defer drv.Close()

	srv := server.New(drv, server.Config{
		MaxVectorSize: maxVector,
		RWTimeout:     rwTimeout,
		Logger:        &log,
	})
	log.Info().
		Str("backend", name).
		Uint32("max_bits", srv.MaxBits()).
		Msg("starting xvcd")
	return srv.ListenAndServe(listenAddr)
}
