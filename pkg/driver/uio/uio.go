//go:build linux

package uio

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
)

// BackendName selects this backend in the driver registry.
const BackendName = "uio"

// Debug bridge register map, word offsets into the mapped window.
const (
	regLength  = 0x00 // bit count for the pending word transfer
	regTMS     = 0x04
	regTDI     = 0x08
	regTDO     = 0x0C
	regControl = 0x10 // write 1 to strobe, reads 0 when the cycle completed
	regDivisor = 0x14 // TCK source-clock divider
)

const (
	// MapSize is the fixed size of the register window.
	MapSize = 0x10000

	controlStrobe = 0x01

	// DefaultPollTimeout bounds one wait for the cycle-complete flag.
	// The bridge has no interrupt line, so completion is polled.
	DefaultPollTimeout = time.Millisecond

	// DefaultTckClockHz is the TCK source clock the divisor divides.
	DefaultTckClockHz = 100_000_000

	// DefaultMaxBits matches the 10 MiB vector ceiling of the server.
	DefaultMaxBits = 8 * 10 * 1024 * 1024
)

// regWindow is the register access seam between the shift engine and
// the mapped memory, so the engine is testable without hardware.
type regWindow interface {
	read(off uintptr) uint32
	write(off uintptr, v uint32)
}

// mmapWindow accesses the live register window. Loads and stores go
// through sync/atomic so the compiler cannot elide or reorder them; the
// window is device memory, not ordinary RAM.
type mmapWindow struct {
	mem []byte
}

func (m *mmapWindow) read(off uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m.mem[off])))
}

func (m *mmapWindow) write(off uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m.mem[off])), v)
}

// Backend bit-bangs the debug bridge registers directly. It owns the
// mapped window and the device file descriptor.
type Backend struct {
	f           *os.File
	mem         []byte
	regs        regWindow
	pollTimeout time.Duration
	clockHz     uint64
	maxBits     uint32
	log         zerolog.Logger
}

// New opens the UIO device node and maps the register window. A map
// failure is an *driver.OpenError: fatal to selecting this backend, not
// to the process.
func New(cfg driver.Config) (*Backend, error) {
	f, err := os.OpenFile(cfg.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, &driver.OpenError{Backend: BackendName, Path: cfg.Path, Err: err}
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, MapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &driver.OpenError{Backend: BackendName, Path: cfg.Path, Err: err}
	}

	b := &Backend{
		f:           f,
		mem:         mem,
		regs:        &mmapWindow{mem: mem},
		pollTimeout: DefaultPollTimeout,
		clockHz:     DefaultTckClockHz,
		maxBits:     DefaultMaxBits,
		log:         cfg.Log(),
	}
	if cfg.PollTimeout > 0 {
		b.pollTimeout = cfg.PollTimeout
	}
	if cfg.TckClockHz > 0 {
		b.clockHz = cfg.TckClockHz
	}
	if cfg.MaxBits != 0 {
		b.maxBits = cfg.MaxBits
	}
	b.log.Info().Str("device", cfg.Path).Int("map_size", MapSize).Msg("debug bridge mapped")
	return b, nil
}

// SetTck writes the nearest achievable divisor and reads it back,
// reporting the realized period. Quantization is expected and is never
// rounded to the request.
func (b *Backend) SetTck(periodNs uint32) (uint32, error) {
	div := divisorForPeriod(periodNs, b.clockHz)
	b.regs.write(regDivisor, div)
	actual := periodForDivisor(b.regs.read(regDivisor), b.clockHz)
	b.log.Debug().
		Uint32("requested_ns", periodNs).
		Uint32("divisor", div).
		Uint32("actual_ns", actual).
		Msg("tck divisor set")
	return actual, nil
}

// Shift clocks numBits cycles through the bridge, one register word at
// a time. A partial final word is masked into a zero-padded word; the
// length register keeps the hardware from clocking past numBits.
func (b *Backend) Shift(numBits uint32, tms, tdi []byte) ([]byte, error) {
	if _, err := driver.ValidateShift(tms, tdi, numBits); err != nil {
		return nil, err
	}
	tdo := make([]byte, len(tms))

	bitsLeft := numBits
	for off := 0; off < len(tms); off += 4 {
		chunkBits := bitsLeft
		if len(tms)-off > 4 {
			chunkBits = 32
		}
		chunkBytes := int((chunkBits + 7) / 8)

		b.regs.write(regLength, chunkBits)
		b.regs.write(regTMS, wordFromBytes(tms[off:off+chunkBytes]))
		b.regs.write(regTDI, wordFromBytes(tdi[off:off+chunkBytes]))
		b.regs.write(regControl, controlStrobe)

		if err := b.waitReady(); err != nil {
			return nil, err
		}

		wordToBytes(tdo[off:off+chunkBytes], b.regs.read(regTDO), int(chunkBits))
		bitsLeft -= chunkBits
	}
	return tdo, nil
}

// waitReady polls the control register until the strobe clears. The
// budget is bounded: a stuck flag is a TimeoutError, never a hang.
func (b *Backend) waitReady() error {
	deadline := time.Now().Add(b.pollTimeout)
	for spins := 0; ; spins++ {
		if b.regs.read(regControl) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &driver.TimeoutError{Op: "shift", Elapsed: b.pollTimeout}
		}
		if spins%64 == 63 {
			runtime.Gosched()
		}
	}
}

func (b *Backend) MaxBits() uint32 { return b.maxBits }

// Close unmaps the register window and closes the device node.
func (b *Backend) Close() error {
	var err error
	if b.mem != nil {
		err = unix.Munmap(b.mem)
		b.mem = nil
	}
	if b.f != nil {
		if cerr := b.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func init() {
	driver.Register(BackendName, func(cfg driver.Config) (driver.Driver, error) {
		return New(cfg)
	})
}
