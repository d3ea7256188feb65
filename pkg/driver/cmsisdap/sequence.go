package cmsisdap

// bitAt reads bit i of an LSB-first packed vector.
func bitAt(v []byte, i int) bool {
	return v[i/8]&(1<<(i%8)) != 0
}

// setBit sets bit i of an LSB-first packed vector.
func setBit(v []byte, i int) {
	v[i/8] |= 1 << (i % 8)
}

// extractBits copies n bits starting at bit offset start into a fresh
// LSB-first vector.
func extractBits(src []byte, start, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if bitAt(src, start+i) {
			setBit(out, i)
		}
	}
	return out
}

// buildSequences splits an XVC shift into CMSIS-DAP sequences: maximal
// runs of constant TMS, capped at 64 TCK cycles each. The concatenation
// of the runs reproduces the shift cycle-for-cycle.
func buildSequences(numBits int, tms, tdi []byte) []sequence {
	var seqs []sequence
	for pos := 0; pos < numBits; {
		level := bitAt(tms, pos)
		run := 1
		for pos+run < numBits && run < maxSequenceBits && bitAt(tms, pos+run) == level {
			run++
		}
		seqs = append(seqs, sequence{
			bits: run,
			tms:  level,
			tdi:  extractBits(tdi, pos, run),
		})
		pos += run
	}
	return seqs
}

// mergeTDO reassembles the per-sequence TDO blocks into one LSB-first
// vector of numBits bits, in cycle order.
func mergeTDO(numBits int, seqs []sequence, payload []byte) []byte {
	tdo := make([]byte, (numBits+7)/8)
	pos := 0
	off := 0
	for _, s := range seqs {
		block := payload[off : off+s.tdoBytes()]
		for i := 0; i < s.bits; i++ {
			if bitAt(block, i) {
				setBit(tdo, pos)
			}
			pos++
		}
		off += s.tdoBytes()
	}
	return tdo
}

// chunkSequences groups sequences into batches whose encoded command
// fits within one transport packet.
func chunkSequences(seqs []sequence, packetSize int) [][]sequence {
	var batches [][]sequence
	var batch []sequence
	size := 2 // command ID + sequence count
	for _, s := range seqs {
		if len(batch) > 0 && (size+s.encodedLen() > packetSize || len(batch) == 255) {
			batches = append(batches, batch)
			batch = nil
			size = 2
		}
		batch = append(batch, s)
		size += s.encodedLen()
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}
