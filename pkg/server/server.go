// Package server accepts XVC client connections and drives one shared
// hardware backend on their behalf. Each connection runs its own
// goroutine and processes commands strictly in order; all hardware
// access is serialized across connections behind a single guard,
// because interleaved partial shifts from two clients would corrupt the
// JTAG state machine on the device.
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
	"github.com/OpenTraceLab/OpenTraceXVC/pkg/xvc"
)

// DefaultAddr is the XVC well-known listen address.
const DefaultAddr = ":2542"

// DefaultRWTimeout is the per-operation socket deadline. It is a
// resource-reclamation policy for abandoned clients, not part of the
// wire protocol.
const DefaultRWTimeout = 30 * time.Second

// Config tunes a Server. The zero value selects all defaults.
type Config struct {
	// MaxVectorSize caps the per-shift vector size in bytes, bounding
	// the memory one command may pin. Defaults to 10 MiB.
	MaxVectorSize int

	// RWTimeout is the socket read/write deadline. Zero selects
	// DefaultRWTimeout; negative disables deadlines.
	RWTimeout time.Duration

	// Logger receives connection and dispatch diagnostics. Nil
	// disables logging.
	Logger *zerolog.Logger
}

func (c Config) maxVectorSize() int {
	if c.MaxVectorSize <= 0 {
		return xvc.DefaultMaxVectorBytes
	}
	return c.MaxVectorSize
}

func (c Config) rwTimeout() time.Duration {
	if c.RWTimeout == 0 {
		return DefaultRWTimeout
	}
	if c.RWTimeout < 0 {
		return 0
	}
	return c.RWTimeout
}

// Server owns the one Driver instance for the process and lends
// exclusive access to whichever connection is currently dispatching.
type Server struct {
	drv driver.Driver
	cfg Config
	log zerolog.Logger

	// mu serializes SetTck/Shift across all connections. It is held
	// only for the duration of one driver call, never across socket
	// I/O, so a slow peer cannot stall other connections' reads.
	mu sync.Mutex
}

// New wraps drv in a Server. The driver is shared for the server's
// lifetime; the caller remains responsible for closing it after the
// server stops.
func New(drv driver.Driver, cfg Config) *Server {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Server{drv: drv, cfg: cfg, log: log}
}

// MaxBits is the capability advertised by GetInfo: the driver's limit
// capped by the configured vector ceiling. Shifts above it are rejected
// before any driver call.
func (s *Server) MaxBits() uint32 {
	max := uint64(s.cfg.maxVectorSize()) * 8
	if drvMax := uint64(s.drv.MaxBits()); drvMax < max {
		max = drvMax
	}
	return uint32(max)
}

// ListenAndServe binds addr (DefaultAddr when empty) and serves until
// the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	defer l.Close()
	return s.Serve(l)
}

// Serve accepts connections until l is closed. Each connection gets its
// own goroutine; a connection's failure never affects its peers or the
// process.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info().Str("addr", l.Addr().String()).Msg("listening for connections")
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// handleConn runs one connection's command loop: read a message,
// dispatch it against the shared driver, write the response, repeat.
// Any framing error, write failure, or driver fault tears down this
// connection only; the protocol has no error-response frame to report
// through.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("peer", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("client connected")

	timeout := s.cfg.rwTimeout()
	for {
		if timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
		}
		msg, err := xvc.ReadMessage(conn, s.cfg.maxVectorSize())
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info().Msg("client disconnected")
			case isTimeout(err):
				log.Warn().Msg("idle client, closing connection")
			default:
				log.Error().Err(err).Msg("framing error, closing connection")
			}
			return
		}

		if err := s.dispatch(deadlineWriter{conn: conn, timeout: timeout}, msg, log); err != nil {
			log.Error().Err(err).Msg("closing connection")
			return
		}
	}
}

// dispatch produces exactly one response for msg, or an error that
// closes the connection. The driver guard is held only around the
// driver call itself.
func (s *Server) dispatch(w io.Writer, msg xvc.Message, log zerolog.Logger) error {
	switch m := msg.(type) {
	case xvc.GetInfo:
		info := xvc.Info{Version: xvc.V1_0, MaxBits: s.MaxBits()}
		log.Debug().Uint32("max_bits", info.MaxBits).Msg("getinfo")
		return info.WriteTo(w)

	case xvc.SetTck:
		s.mu.Lock()
		actual, err := s.drv.SetTck(m.PeriodNs)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("settck %d ns: %w", m.PeriodNs, err)
		}
		log.Debug().Uint32("requested_ns", m.PeriodNs).Uint32("actual_ns", actual).Msg("settck")
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], actual)
		_, err = w.Write(buf[:])
		return err

	case xvc.Shift:
		// Protocol-level rejection: never reaches the driver.
		if m.NumBits > s.MaxBits() {
			return fmt.Errorf("shift of %d bits exceeds advertised capability %d", m.NumBits, s.MaxBits())
		}
		s.mu.Lock()
		tdo, err := s.drv.Shift(m.NumBits, m.TMS, m.TDI)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("shift of %d bits: %w", m.NumBits, err)
		}
		log.Debug().Uint32("num_bits", m.NumBits).Msg("shift")
		_, err = w.Write(tdo)
		return err

	default:
		return fmt.Errorf("unhandled message type %T", msg)
	}
}

// deadlineWriter arms the write deadline at the moment the response is
// written. Arming it earlier would charge time spent queued on the
// driver guard, or inside a long hardware shift, against the socket
// write and expire a healthy connection under contention.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.Write(p)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
