// Package driver defines the contract between the XVC server and the
// hardware backends that realize it, plus a registry through which
// backends make themselves selectable by name.
//
// A Driver owns exactly one underlying system resource (a device file
// descriptor, a mapped register window, a USB interface) and releases
// it on Close. Drivers are not required to be safe for concurrent use;
// the server serializes all access behind its own guard, because only
// one physical JTAG bus exists.
package driver

import "fmt"

// Driver abstracts one JTAG bit-transport backend.
type Driver interface {
	// SetTck applies the requested TCK half-period in nanoseconds and
	// returns the period the hardware actually realized, which may
	// differ due to clock-divider quantization. It is idempotent and
	// completes within a bounded number of hardware handshakes.
	SetTck(periodNs uint32) (uint32, error)

	// Shift drives exactly numBits TCK cycles, presenting TMS/TDI bit i
	// on cycle i, and returns the TDO bit sampled on each cycle in the
	// same LSB-first packing. No cycles beyond numBits are clocked.
	// Buffers are owned by the callee for the duration of the call and
	// must not be retained afterwards.
	Shift(numBits uint32, tms, tdi []byte) ([]byte, error)

	// MaxBits reports the largest numBits a single Shift may carry.
	MaxBits() uint32

	// Close releases the backend's system resource.
	Close() error
}

// ValidateShift checks the shared length invariant: tms and tdi must
// each hold exactly ceil(numBits/8) bytes. Backends call this before
// touching hardware.
func ValidateShift(tms, tdi []byte, numBits uint32) (int, error) {
	required := int((uint64(numBits) + 7) / 8)
	if len(tms) != required {
		return 0, fmt.Errorf("driver: tms vector is %d bytes, need %d for %d bits", len(tms), required, numBits)
	}
	if len(tdi) != required {
		return 0, fmt.Errorf("driver: tdi vector is %d bytes, need %d for %d bits", len(tdi), required, numBits)
	}
	return required, nil
}
