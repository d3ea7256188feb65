package xvc

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Command literals as they appear on the wire, including the trailing
// delimiter. Matching is byte-exact.
const (
	cmdGetInfo = "getinfo:"
	cmdSetTck  = "settck:"
	cmdShift   = "shift:"
)

// DefaultMaxVectorBytes bounds the per-shift vector size accepted by
// ReadMessage when the caller passes no ceiling. Matches the upstream
// server default of 10 MiB.
const DefaultMaxVectorBytes = 10 * 1024 * 1024

const infoPrefix = "xvcServer_v"

// ReadMessage decodes exactly one message from r, consuming only the
// bytes that belong to it. A short read inside a declared payload
// surfaces as io.ErrUnexpectedEOF; a clean close before the first byte
// surfaces as io.EOF. maxVectorBytes caps the vector size a shift:
// command may declare; zero or negative selects DefaultMaxVectorBytes.
func ReadMessage(r io.Reader, maxVectorBytes int) (Message, error) {
	if maxVectorBytes <= 0 {
		maxVectorBytes = DefaultMaxVectorBytes
	}

	// The longest fixed part is "shift:" + 4 bytes of num_bits. The
	// first two bytes disambiguate the three commands.
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return nil, err
	}

	switch string(buf[:2]) {
	case "ge":
		n := len(cmdGetInfo)
		if _, err := io.ReadFull(r, buf[2:n]); err != nil {
			return nil, err
		}
		if string(buf[:n]) != cmdGetInfo {
			return nil, &CommandError{Got: string(buf[:n])}
		}
		return GetInfo{}, nil

	case "se":
		n := len(cmdSetTck)
		if _, err := io.ReadFull(r, buf[2:n+4]); err != nil {
			return nil, err
		}
		if string(buf[:n]) != cmdSetTck {
			return nil, &CommandError{Got: string(buf[:n])}
		}
		return SetTck{PeriodNs: binary.LittleEndian.Uint32(buf[n : n+4])}, nil

	case "sh":
		n := len(cmdShift)
		if _, err := io.ReadFull(r, buf[2:n+4]); err != nil {
			return nil, err
		}
		if string(buf[:n]) != cmdShift {
			return nil, &CommandError{Got: string(buf[:n])}
		}
		numBits := binary.LittleEndian.Uint32(buf[n : n+4])
		numBytes := VectorBytes(numBits)
		if numBytes > maxVectorBytes {
			return nil, &VectorTooLargeError{Max: maxVectorBytes, Got: numBytes}
		}
		tms := make([]byte, numBytes)
		if _, err := io.ReadFull(r, tms); err != nil {
			return nil, err
		}
		tdi := make([]byte, numBytes)
		if _, err := io.ReadFull(r, tdi); err != nil {
			return nil, err
		}
		return Shift{NumBits: numBits, TMS: tms, TDI: tdi}, nil

	default:
		return nil, &CommandError{Got: string(buf[:2])}
	}
}

// WriteMessage encodes m in wire format. The only failure mode is the
// sink itself.
func WriteMessage(w io.Writer, m Message) error {
	switch m := m.(type) {
	case GetInfo:
		_, err := io.WriteString(w, cmdGetInfo)
		return err
	case SetTck:
		var buf [len(cmdSetTck) + 4]byte
		copy(buf[:], cmdSetTck)
		binary.LittleEndian.PutUint32(buf[len(cmdSetTck):], m.PeriodNs)
		_, err := w.Write(buf[:])
		return err
	case Shift:
		buf := make([]byte, len(cmdShift)+4, len(cmdShift)+4+len(m.TMS)+len(m.TDI))
		copy(buf, cmdShift)
		binary.LittleEndian.PutUint32(buf[len(cmdShift):], m.NumBits)
		buf = append(buf, m.TMS...)
		buf = append(buf, m.TDI...)
		_, err := w.Write(buf)
		return err
	default:
		return fmt.Errorf("xvc: unknown message type %T", m)
	}
}

// WriteTo writes the capability string, e.g. "xvcServer_v1.0:4096\n".
// The byte format is fixed by the upstream XVC 1.0 specification and
// asserted against reference implementations.
func (i Info) WriteTo(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s%s:%d\n", infoPrefix, i.Version, i.MaxBits)
	return err
}

// ParseInfo reads one newline-terminated capability string from r. It
// reads byte-by-byte so no bytes beyond the terminating newline are
// consumed.
func ParseInfo(r io.Reader) (Info, error) {
	line, err := readLine(r, 64)
	if err != nil {
		return Info{}, err
	}

	rest, ok := strings.CutPrefix(line, infoPrefix)
	if !ok {
		return Info{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidInfo, infoPrefix)
	}
	version, value, ok := strings.Cut(rest, ":")
	if !ok {
		return Info{}, fmt.Errorf("%w: missing ':' separator", ErrInvalidInfo)
	}
	if version != V1_0.String() {
		return Info{}, &UnsupportedVersionError{Version: version}
	}
	maxBits, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return Info{}, fmt.Errorf("%w: bad capability value %q", ErrInvalidInfo, value)
	}
	return Info{Version: V1_0, MaxBits: uint32(maxBits)}, nil
}

func readLine(r io.Reader, limit int) (string, error) {
	var line []byte
	var b [1]byte
	for len(line) < limit {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return string(line), nil
		}
		line = append(line, b[0])
	}
	return "", fmt.Errorf("%w: no newline within %d bytes", ErrInvalidInfo, limit)
}
