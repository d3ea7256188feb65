package driver

import (
	"errors"
	"sync"
	"time"
)

// DefaultSimMaxBits is the per-shift capability the simulator reports
// unless overridden. Matches the 10 MiB vector ceiling of the server.
const DefaultSimMaxBits = 8 * 10 * 1024 * 1024

// ShiftOp captures one shift invocation for inspection within tests,
// including when the call entered and left the backend.
type ShiftOp struct {
	NumBits uint32
	TMS     []byte
	TDI     []byte
	Start   time.Time
	End     time.Time
}

// Sim is an in-memory Driver for tests and hardware-free bring-up. It
// records every call and can provide deterministic behavior through the
// OnShift and OnSetTck hooks. By default it echoes TDI back as TDO and
// accepts any period unchanged.
type Sim struct {
	MaxShiftBits uint32

	OnShift  func(numBits uint32, tms, tdi []byte) ([]byte, error)
	OnSetTck func(periodNs uint32) (uint32, error)

	mu       sync.Mutex
	periodNs uint32
	shifts   []ShiftOp
	closed   bool
}

// NewSim constructs a simulator with the default capability.
func NewSim() *Sim {
	return &Sim{MaxShiftBits: DefaultSimMaxBits}
}

func (s *Sim) SetTck(periodNs uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("driver: simulator is closed")
	}
	if s.OnSetTck != nil {
		actual, err := s.OnSetTck(periodNs)
		if err != nil {
			return 0, err
		}
		s.periodNs = actual
		return actual, nil
	}
	s.periodNs = periodNs
	return periodNs, nil
}

func (s *Sim) Shift(numBits uint32, tms, tdi []byte) ([]byte, error) {
	required, err := ValidateShift(tms, tdi, numBits)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("driver: simulator is closed")
	}
	op := ShiftOp{
		NumBits: numBits,
		TMS:     append([]byte(nil), tms...),
		TDI:     append([]byte(nil), tdi...),
		Start:   time.Now(),
	}
	s.mu.Unlock()

	var tdo []byte
	if s.OnShift != nil {
		tdo, err = s.OnShift(numBits, tms, tdi)
	} else {
		// Echo TDI to TDO to keep tests predictable.
		tdo = make([]byte, required)
		copy(tdo, tdi)
	}

	op.End = time.Now()
	s.mu.Lock()
	s.shifts = append(s.shifts, op)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return tdo, nil
}

func (s *Sim) MaxBits() uint32 {
	if s.MaxShiftBits == 0 {
		return DefaultSimMaxBits
	}
	return s.MaxShiftBits
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// PeriodNs returns the last period applied through SetTck.
func (s *Sim) PeriodNs() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periodNs
}

// Shifts returns a copy of all recorded shift operations.
func (s *Sim) Shifts() []ShiftOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ShiftOp(nil), s.shifts...)
}

func init() {
	Register("sim", func(cfg Config) (Driver, error) {
		s := NewSim()
		if cfg.MaxBits != 0 {
			s.MaxShiftBits = cfg.MaxBits
		}
		return s, nil
	})
}
