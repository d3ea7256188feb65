package cmsisdap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
)

// BackendName selects this backend in the driver registry.
const BackendName = "cmsisdap"

const (
	// DefaultVID/DefaultPID match the Raspberry Pi debug probe.
	DefaultVID = 0x2E8A
	DefaultPID = 0x000C

	// DefaultMaxBits keeps a single shift to a bounded number of USB
	// round trips.
	DefaultMaxBits = 1 << 20

	// TCK range typical for CMSIS-DAP probes.
	minTckHz = 1_000
	maxTckHz = 10_000_000
)

// Backend drives JTAG through a CMSIS-DAP probe. It owns the claimed
// USB interface.
type Backend struct {
	t       transport
	maxBits uint32
	log     zerolog.Logger
}

// New opens the probe named by cfg.Path ("vid:pid" in hex, empty for
// the default probe) and connects its JTAG port.
func New(cfg driver.Config) (*Backend, error) {
	vid, pid, err := parseVIDPID(cfg.Path)
	if err != nil {
		return nil, &driver.OpenError{Backend: BackendName, Path: cfg.Path, Err: err}
	}
	t, err := openUSB(vid, pid)
	if err != nil {
		return nil, &driver.OpenError{Backend: BackendName, Path: cfg.Path, Err: err}
	}

	b := &Backend{t: t, maxBits: DefaultMaxBits, log: cfg.Log()}
	if cfg.MaxBits != 0 {
		b.maxBits = cfg.MaxBits
	}
	if err := b.connect(); err != nil {
		t.Close()
		return nil, &driver.OpenError{Backend: BackendName, Path: cfg.Path, Err: err}
	}
	return b, nil
}

func (b *Backend) connect() error {
	if resp, err := b.t.writeRead(encodeInfo(infoFirmwareVer)); err == nil {
		if fw, err := decodeInfo(resp); err == nil {
			b.log.Info().Str("firmware", fw).Msg("probe identified")
		}
	}

	resp, err := b.t.writeRead(encodeConnect(portJTAG))
	if err != nil {
		return err
	}
	return decodeConnect(resp)
}

// SetTck maps the period onto the probe's clock command. The realized
// period reflects the clamped frequency, never the raw request.
func (b *Backend) SetTck(periodNs uint32) (uint32, error) {
	hz := hzForPeriod(periodNs)
	resp, err := b.t.writeRead(encodeSWJClock(hz))
	if err != nil {
		return 0, fmt.Errorf("cmsisdap: set clock: %w", err)
	}
	if err := decodeSWJClock(resp); err != nil {
		return 0, err
	}
	actual := periodForHz(hz)
	b.log.Debug().Uint32("requested_ns", periodNs).Uint32("actual_ns", actual).Msg("tck set")
	return actual, nil
}

// Shift splits the vectors into constant-TMS sequences, batches them
// into probe packets, and reassembles TDO in cycle order.
func (b *Backend) Shift(numBits uint32, tms, tdi []byte) ([]byte, error) {
	numBytes, err := driver.ValidateShift(tms, tdi, numBits)
	if err != nil {
		return nil, err
	}
	if numBits == 0 {
		return make([]byte, 0), nil
	}

	seqs := buildSequences(int(numBits), tms, tdi)
	payload := make([]byte, 0, numBytes+len(seqs))
	for _, batch := range chunkSequences(seqs, b.t.packetLen()) {
		resp, err := b.t.writeRead(encodeSequences(batch))
		if err != nil {
			return nil, fmt.Errorf("cmsisdap: shift: %w", err)
		}
		block, err := decodeSequences(resp, batch)
		if err != nil {
			return nil, err
		}
		payload = append(payload, block...)
	}
	return mergeTDO(int(numBits), seqs, payload), nil
}

func (b *Backend) MaxBits() uint32 { return b.maxBits }

// Close disconnects the probe and releases the USB interface.
func (b *Backend) Close() error {
	_, _ = b.t.writeRead(encodeDisconnect())
	return b.t.Close()
}

func hzForPeriod(periodNs uint32) uint32 {
	if periodNs == 0 {
		return maxTckHz
	}
	hz := uint64(1_000_000_000) / uint64(periodNs)
	if hz > maxTckHz {
		return maxTckHz
	}
	if hz < minTckHz {
		return minTckHz
	}
	return uint32(hz)
}

func periodForHz(hz uint32) uint32 {
	return uint32((uint64(1_000_000_000) + uint64(hz)/2) / uint64(hz))
}

func parseVIDPID(s string) (uint16, uint16, error) {
	if s == "" {
		return DefaultVID, DefaultPID, nil
	}
	v, p, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("cmsisdap: device must be vid:pid, got %q", s)
	}
	vid, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("cmsisdap: bad vendor id %q", v)
	}
	pid, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("cmsisdap: bad product id %q", p)
	}
	return uint16(vid), uint16(pid), nil
}

func init() {
	driver.Register(BackendName, func(cfg driver.Config) (driver.Driver, error) {
		return New(cfg)
	})
}
