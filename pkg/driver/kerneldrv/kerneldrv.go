//go:build linux

// Package kerneldrv drives a Xilinx debug bridge through the
// xilinx_xvc_driver kernel module. Each operation marshals its
// arguments into the driver's fixed-layout control structure and issues
// one ioctl; the kernel performs the actual JTAG clocking.
package kerneldrv

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
)

// BackendName selects this backend in the driver registry.
const BackendName = "kernel"

// DefaultDevicePath is where the kernel module exposes the bridge.
const DefaultDevicePath = "/dev/xilinx_xvc_driver"

// DefaultMaxBits matches the 10 MiB vector ceiling of the server.
const DefaultMaxBits = 8 * 10 * 1024 * 1024

// Request codes as the kernel reports them. The codes computed from the
// XVC_MAGIC macro in xvc_ioctl.h disagree between kernel and userland,
// so the upstream projects hardcode the kernel-side values.
const (
	iocShift     = 0xD6634401
	iocReadProps = 0xD6534402
)

const opcodeShift = 1

// xvcIoc mirrors struct xil_xvc_ioc. Field order and widths are an ABI
// contract with the kernel module.
type xvcIoc struct {
	opcode uint32
	length uint32
	tmsBuf *byte
	tdiBuf *byte
	tdoBuf *byte
}

// bridgeProps mirrors the property block the driver fills on
// iocReadProps: the debug bridge location from the device tree and its
// compatibility string.
type bridgeProps struct {
	baseAddr uint64
	size     uint64
	compat   [64]byte
}

func (p *bridgeProps) compatString() string {
	if i := bytes.IndexByte(p.compat[:], 0); i >= 0 {
		return string(p.compat[:i])
	}
	return string(p.compat[:])
}

// Backend is a Driver backed by the kernel module. It owns the device
// file descriptor it opened.
type Backend struct {
	f       *os.File
	maxBits uint32
	log     zerolog.Logger
}

// New opens the device file and reads the bridge properties back as a
// liveness check. Failure is an *driver.OpenError: fatal to selecting
// this backend, not to the process.
func New(cfg driver.Config) (*Backend, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultDevicePath
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &driver.OpenError{Backend: BackendName, Path: path, Err: err}
	}

	b := &Backend{f: f, maxBits: DefaultMaxBits, log: cfg.Log()}
	if cfg.MaxBits != 0 {
		b.maxBits = cfg.MaxBits
	}

	var props bridgeProps
	if err := b.ioctl(iocReadProps, unsafe.Pointer(&props)); err != nil {
		f.Close()
		return nil, &driver.OpenError{Backend: BackendName, Path: path, Err: err}
	}
	b.log.Info().
		Str("device", path).
		Uint64("base_addr", props.baseAddr).
		Uint64("size", props.size).
		Str("compat", props.compatString()).
		Msg("debug bridge opened")

	return b, nil
}

// SetTck reports the requested period as achieved. The kernel module
// exposes no clock control; the TCK rate is fixed by the bridge IP
// configuration.
func (b *Backend) SetTck(periodNs uint32) (uint32, error) {
	b.log.Debug().Uint32("period_ns", periodNs).Msg("settck passthrough")
	return periodNs, nil
}

// Shift hands the vectors to the kernel in one ioctl and validates the
// echoed length before exposing the TDO buffer.
func (b *Backend) Shift(numBits uint32, tms, tdi []byte) ([]byte, error) {
	numBytes, err := driver.ValidateShift(tms, tdi, numBits)
	if err != nil {
		return nil, err
	}
	tdo := make([]byte, numBytes)
	if numBits == 0 {
		return tdo, nil
	}

	ioc := xvcIoc{
		opcode: opcodeShift,
		length: numBits,
		tmsBuf: &tms[0],
		tdiBuf: &tdi[0],
		tdoBuf: &tdo[0],
	}
	if err := b.ioctl(iocShift, unsafe.Pointer(&ioc)); err != nil {
		return nil, &driver.IoctlError{Op: "shift", Err: err}
	}
	runtime.KeepAlive(tms)
	runtime.KeepAlive(tdi)

	// The driver echoes the bit count it actually clocked.
	if ioc.length != numBits {
		return nil, &driver.IoctlError{
			Op:  "shift",
			Err: fmt.Errorf("kernel clocked %d of %d bits", ioc.length, numBits),
		}
	}
	return tdo, nil
}

func (b *Backend) MaxBits() uint32 { return b.maxBits }

func (b *Backend) Close() error { return b.f.Close() }

func (b *Backend) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), req, uintptr(arg))
	runtime.KeepAlive(b.f)
	if errno != 0 {
		return errno
	}
	return nil
}

func init() {
	driver.Register(BackendName, func(cfg driver.Config) (driver.Driver, error) {
		return New(cfg)
	})
}
