package driver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config carries the construction parameters shared by all backends.
// Fields a backend does not use are ignored by it.
type Config struct {
	// Path names the backend's system resource: a device special file
	// for the kernel and UIO backends, a VID:PID pair for USB probes.
	Path string

	// PollTimeout bounds a single hardware status poll. Zero selects
	// the backend default.
	PollTimeout time.Duration

	// MaxBits overrides the backend's advertised per-shift capability.
	// Zero keeps the backend default.
	MaxBits uint32

	// TckClockHz is the TCK source clock the memory-mapped backend
	// derives its divisor from. Zero keeps the backend default.
	TckClockHz uint64

	// Logger receives backend diagnostics. Nil disables logging.
	Logger *zerolog.Logger
}

// Log returns the configured logger, or a no-op logger when none is
// set.
func (c Config) Log() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

// Factory constructs a ready Driver or returns an *OpenError.
type Factory func(Config) (Driver, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register makes a backend selectable by name. Backends call it from
// their init functions. Registering a nil factory or the same name
// twice panics.
func Register(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if f == nil {
		panic("driver: Register factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("driver: Register called twice for backend " + name)
	}
	backends[name] = f
}

// Backends returns the sorted names of all registered backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	list := make([]string, 0, len(backends))
	for name := range backends {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// Open constructs the named backend.
func Open(name string, cfg Config) (Driver, error) {
	backendsMu.RLock()
	f, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver: unknown backend %q (forgotten import?)", name)
	}
	return f(cfg)
}
