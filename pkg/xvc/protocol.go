// Package xvc implements the Xilinx Virtual Cable (XVC) 1.0 wire
// protocol: the three client commands (getinfo:, settck:, shift:), their
// responses, and the server capability string. The package is pure
// encode/decode over io.Reader/io.Writer; it knows nothing about
// hardware or sockets.
package xvc

import "fmt"

// Version identifies an XVC protocol revision.
type Version struct {
	Major int
	Minor int
}

// V1_0 is the only protocol revision defined by the upstream
// specification.
var V1_0 = Version{Major: 1, Minor: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Message is one client request. Exactly one response is produced per
// message, in the order received; the protocol has no pipelining and no
// error frame.
type Message interface {
	message()
}

// GetInfo requests the server capability string.
type GetInfo struct{}

// SetTck requests a TCK half-period in nanoseconds. The server replies
// with the period the hardware actually realized, which may differ due
// to clock-divider quantization.
type SetTck struct {
	PeriodNs uint32
}

// Shift drives NumBits JTAG clock cycles. TMS and TDI each carry one
// bit per cycle, packed LSB-first (bit 0 of byte 0 is cycle 0), in
// exactly VectorBytes(NumBits) bytes. The response is the TDO vector in
// the same packing.
type Shift struct {
	NumBits uint32
	TMS     []byte
	TDI     []byte
}

func (GetInfo) message() {}
func (SetTck) message()  {}
func (Shift) message()   {}

// Info is the server capability advertisement returned for GetInfo.
type Info struct {
	Version Version
	// MaxBits is the largest Shift.NumBits the server accepts. Shifts
	// above it are rejected before reaching hardware.
	MaxBits uint32
}

// VectorBytes returns the number of bytes needed to pack numBits bits,
// one bit per TCK cycle.
func VectorBytes(numBits uint32) int {
	return int((uint64(numBits) + 7) / 8)
}
