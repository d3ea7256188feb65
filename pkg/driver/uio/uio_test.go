//go:build linux

package uio

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
)

// fakeWindow emulates the debug bridge registers: the strobe completes
// immediately and TDO loops back TDI. It records the per-word transfer
// lengths so tests can assert the clocking schedule.
type fakeWindow struct {
	length  uint32
	tms     uint32
	tdi     uint32
	control uint32
	divisor uint32

	stuck   bool // when set, the strobe never clears
	lengths []uint32
}

func (f *fakeWindow) read(off uintptr) uint32 {
	switch off {
	case regControl:
		if f.stuck {
			return controlStrobe
		}
		return 0
	case regTDO:
		return f.tdi
	case regDivisor:
		return f.divisor
	default:
		return 0
	}
}

func (f *fakeWindow) write(off uintptr, v uint32) {
	switch off {
	case regLength:
		f.length = v
		f.lengths = append(f.lengths, v)
	case regTMS:
		f.tms = v
	case regTDI:
		f.tdi = v
	case regControl:
		f.control = v
	case regDivisor:
		f.divisor = v
	}
}

func testBackend(w regWindow) *Backend {
	cfg := driver.Config{}
	return &Backend{
		regs:        w,
		pollTimeout: 10 * time.Millisecond,
		clockHz:     DefaultTckClockHz,
		maxBits:     DefaultMaxBits,
		log:         cfg.Log(),
	}
}

func TestShiftLoopback(t *testing.T) {
	w := &fakeWindow{}
	b := testBackend(w)

	tdi := []byte{0xA5, 0x5A, 0xFF, 0x00, 0x3C}
	tms := make([]byte, 5)
	tdo, err := b.Shift(40, tms, tdi)
	if err != nil {
		t.Fatalf("Shift() error = %v", err)
	}
	if !bytes.Equal(tdo, tdi) {
		t.Errorf("Shift() tdo = % X, want % X", tdo, tdi)
	}
}

func TestShiftWordSchedule(t *testing.T) {
	tests := []struct {
		name    string
		numBits uint32
		want    []uint32
	}{
		{"single full word", 32, []uint32{32}},
		{"partial word only", 13, []uint32{13}},
		{"full then partial", 40, []uint32{32, 8}},
		{"two words then remainder", 69, []uint32{32, 32, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWindow{}
			b := testBackend(w)

			n := (int(tt.numBits) + 7) / 8
			if _, err := b.Shift(tt.numBits, make([]byte, n), make([]byte, n)); err != nil {
				t.Fatalf("Shift() error = %v", err)
			}

			if len(w.lengths) != len(tt.want) {
				t.Fatalf("clocked %d words, want %d (%v)", len(w.lengths), len(tt.want), w.lengths)
			}
			var total uint32
			for i, got := range w.lengths {
				if got != tt.want[i] {
					t.Errorf("word %d length = %d, want %d", i, got, tt.want[i])
				}
				total += got
			}
			if total != tt.numBits {
				t.Errorf("total clocked bits = %d, want %d", total, tt.numBits)
			}
		})
	}
}

func TestShiftZeroBits(t *testing.T) {
	w := &fakeWindow{}
	b := testBackend(w)

	tdo, err := b.Shift(0, []byte{}, []byte{})
	if err != nil {
		t.Fatalf("Shift() error = %v", err)
	}
	if len(tdo) != 0 {
		t.Errorf("Shift(0) tdo length = %d, want 0", len(tdo))
	}
	if len(w.lengths) != 0 {
		t.Errorf("Shift(0) clocked %d words, want 0", len(w.lengths))
	}
}

func TestShiftPartialWordMasked(t *testing.T) {
	w := &fakeWindow{}
	b := testBackend(w)

	// 5 bits with an all-ones loopback word: the three unused bits of
	// the final byte must read back zero.
	tdo, err := b.Shift(5, []byte{0x1F}, []byte{0xFF})
	if err != nil {
		t.Fatalf("Shift() error = %v", err)
	}
	if tdo[0] != 0x1F {
		t.Errorf("Shift() tdo = %#02x, want 0x1f", tdo[0])
	}
}

func TestShiftTimeout(t *testing.T) {
	w := &fakeWindow{stuck: true}
	b := testBackend(w)
	b.pollTimeout = time.Millisecond

	_, err := b.Shift(8, []byte{0x00}, []byte{0x00})
	var te *driver.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Shift() error = %v, want *driver.TimeoutError", err)
	}
}

func TestSetTckQuantizes(t *testing.T) {
	w := &fakeWindow{}
	b := testBackend(w)

	// 25 ns against a 10 ns source tick quantizes to 30 ns.
	actual, err := b.SetTck(25)
	if err != nil {
		t.Fatalf("SetTck() error = %v", err)
	}
	if actual != 30 {
		t.Errorf("SetTck(25) = %d, want 30", actual)
	}
	if w.divisor != 3 {
		t.Errorf("divisor register = %d, want 3", w.divisor)
	}

	again, err := b.SetTck(25)
	if err != nil {
		t.Fatalf("SetTck() error = %v", err)
	}
	if again != actual {
		t.Errorf("SetTck not idempotent: %d then %d", actual, again)
	}
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := New(driver.Config{Path: "/dev/nonexistent-uio-device"})
	var oe *driver.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("New() error = %v, want *driver.OpenError", err)
	}
}
