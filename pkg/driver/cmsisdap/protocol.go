// Package cmsisdap exposes a CMSIS-DAP USB probe as an XVC driver, so a
// board without a debug-bridge IP can still be served over the wire
// protocol. The probe executes JTAG sequences on the server's behalf;
// per-bit TMS control is recovered by splitting each shift into runs of
// constant TMS.
package cmsisdap

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP command IDs used by this backend.
const (
	cmdInfo       = 0x00
	cmdConnect    = 0x02
	cmdDisconnect = 0x03
	cmdSWJClock   = 0x11
	cmdSequence   = 0x14
)

const (
	infoFirmwareVer = 0x04

	portJTAG = 2

	statusOK = 0x00

	// Sequence info byte layout: bits [5:0] TCK count (0 means 64),
	// bit 6 TMS level, bit 7 capture TDO.
	seqTCKMask    = 0x3F
	seqTMS        = 0x40
	seqCaptureTDO = 0x80

	// maxSequenceBits is the largest TCK count one sequence can carry.
	maxSequenceBits = 64
)

// sequence is one constant-TMS run of TCK cycles. TDI is packed
// LSB-first into ceil(bits/8) bytes, the same ordering XVC uses.
type sequence struct {
	bits int
	tms  bool
	tdi  []byte
}

func (s sequence) info() byte {
	b := byte(s.bits & seqTCKMask) // 64 wraps to 0, which means 64
	if s.tms {
		b |= seqTMS
	}
	return b | seqCaptureTDO
}

// tdoBytes is the number of response bytes the probe returns for this
// sequence.
func (s sequence) tdoBytes() int {
	return (s.bits + 7) / 8
}

// encodedLen is the command-payload cost of this sequence.
func (s sequence) encodedLen() int {
	return 1 + len(s.tdi)
}

func encodeInfo(id byte) []byte {
	return []byte{cmdInfo, id}
}

func decodeInfo(resp []byte) (string, error) {
	if len(resp) < 2 || resp[0] != cmdInfo {
		return "", fmt.Errorf("cmsisdap: bad info response")
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return "", fmt.Errorf("cmsisdap: truncated info string")
	}
	return string(resp[2 : 2+n]), nil
}

func encodeConnect(port byte) []byte {
	return []byte{cmdConnect, port}
}

func decodeConnect(resp []byte) error {
	if len(resp) < 2 || resp[0] != cmdConnect {
		return fmt.Errorf("cmsisdap: bad connect response")
	}
	if resp[1] != portJTAG {
		return fmt.Errorf("cmsisdap: probe connected port %d, want JTAG", resp[1])
	}
	return nil
}

func encodeDisconnect() []byte {
	return []byte{cmdDisconnect}
}

func encodeSWJClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = cmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

func decodeSWJClock(resp []byte) error {
	if len(resp) < 2 || resp[0] != cmdSWJClock {
		return fmt.Errorf("cmsisdap: bad clock response")
	}
	if resp[1] != statusOK {
		return fmt.Errorf("cmsisdap: probe rejected clock setting")
	}
	return nil
}

// encodeSequences builds one DAP_JTAG_Sequence command.
func encodeSequences(seqs []sequence) []byte {
	size := 2
	for _, s := range seqs {
		size += s.encodedLen()
	}
	cmd := make([]byte, 2, size)
	cmd[0] = cmdSequence
	cmd[1] = byte(len(seqs))
	for _, s := range seqs {
		cmd = append(cmd, s.info())
		cmd = append(cmd, s.tdi...)
	}
	return cmd
}

// decodeSequences validates a DAP_JTAG_Sequence response and returns
// the concatenated TDO payload, one ceil(bits/8) block per sequence.
func decodeSequences(resp []byte, seqs []sequence) ([]byte, error) {
	if len(resp) < 2 || resp[0] != cmdSequence {
		return nil, fmt.Errorf("cmsisdap: bad sequence response")
	}
	if resp[1] != statusOK {
		return nil, fmt.Errorf("cmsisdap: probe reported sequence failure")
	}
	want := 0
	for _, s := range seqs {
		want += s.tdoBytes()
	}
	if len(resp) < 2+want {
		return nil, fmt.Errorf("cmsisdap: sequence response carries %d TDO bytes, want %d", len(resp)-2, want)
	}
	return resp[2 : 2+want], nil
}
