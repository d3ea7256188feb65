// Package uio drives a memory-mapped Xilinx debug bridge exposed
// through the Linux userspace I/O subsystem. Shifts are performed in
// software, one 32-bit register word at a time, against the bridge's
// control registers.
package uio

// wordFromBytes packs up to four vector bytes into one register word,
// little-endian, zero-padding a partial final word.
func wordFromBytes(b []byte) uint32 {
	var w uint32
	for i := 0; i < len(b) && i < 4; i++ {
		w |= uint32(b[i]) << (8 * i)
	}
	return w
}

// wordToBytes unpacks a register word into dst (at most four bytes),
// masking bits beyond numBits in the final byte so undriven TDO bits
// never leak into the result.
func wordToBytes(dst []byte, w uint32, numBits int) {
	n := len(dst)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		dst[i] = byte(w >> (8 * i))
	}
	if rem := numBits % 8; rem != 0 && n > 0 {
		dst[n-1] &= byte(1<<rem) - 1
	}
}

// divisorForPeriod returns the clock-divider setting closest to the
// requested TCK half-period, never below 1.
func divisorForPeriod(periodNs uint32, clockHz uint64) uint32 {
	// ticks = periodNs * clockHz / 1e9, rounded to nearest.
	ticks := (uint64(periodNs)*clockHz + 500_000_000) / 1_000_000_000
	if ticks < 1 {
		return 1
	}
	if ticks > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(ticks)
}

// periodForDivisor reports the half-period a divisor setting realizes.
func periodForDivisor(div uint32, clockHz uint64) uint32 {
	if div == 0 {
		div = 1
	}
	ns := (uint64(div)*1_000_000_000 + clockHz/2) / clockHz
	if ns > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(ns)
}
