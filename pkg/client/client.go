// Package client implements a synchronous XVC client. It exists for
// loopback testing against the server and for probing remote XVC
// endpoints; one request is in flight at a time because the protocol
// has no frame identifiers to match pipelined responses with.
package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/xvc"
)

// DefaultDialTimeout bounds connection establishment.
const DefaultDialTimeout = 5 * time.Second

// Client is a connection to one XVC server. Safe for concurrent use;
// calls are serialized internally.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to an XVC server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// GetInfo queries the server's protocol version and shift capability.
func (c *Client) GetInfo() (xvc.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := xvc.WriteMessage(c.conn, xvc.GetInfo{}); err != nil {
		return xvc.Info{}, fmt.Errorf("client: getinfo: %w", err)
	}
	info, err := xvc.ParseInfo(c.conn)
	if err != nil {
		return xvc.Info{}, fmt.Errorf("client: getinfo: %w", err)
	}
	return info, nil
}

// SetTck requests a TCK period in nanoseconds and returns the period the
// server actually applied.
func (c *Client) SetTck(periodNs uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := xvc.WriteMessage(c.conn, xvc.SetTck{PeriodNs: periodNs}); err != nil {
		return 0, fmt.Errorf("client: settck: %w", err)
	}
	var buf [4]byte
	if _, err := io.ReadFull(c.conn, buf[:]); err != nil {
		return 0, fmt.Errorf("client: settck: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Shift clocks numBits cycles with the given TMS and TDI vectors and
// returns the captured TDO vector. Both vectors must hold exactly
// ceil(numBits/8) bytes.
func (c *Client) Shift(numBits uint32, tms, tdi []byte) ([]byte, error) {
	numBytes := xvc.VectorBytes(numBits)
	if len(tms) != numBytes || len(tdi) != numBytes {
		return nil, fmt.Errorf("client: shift of %d bits needs %d-byte vectors, got tms=%d tdi=%d",
			numBits, numBytes, len(tms), len(tdi))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := xvc.WriteMessage(c.conn, xvc.Shift{NumBits: numBits, TMS: tms, TDI: tdi}); err != nil {
		return nil, fmt.Errorf("client: shift: %w", err)
	}
	tdo := make([]byte, numBytes)
	if _, err := io.ReadFull(c.conn, tdo); err != nil {
		return nil, fmt.Errorf("client: shift: %w", err)
	}
	return tdo, nil
}

// Close shuts the connection down. Any in-flight call fails.
func (c *Client) Close() error {
	return c.conn.Close()
}
