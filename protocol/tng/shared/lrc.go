package shared

import (
	"io"
	"os"

	"github.com/telelumen/golum/common"
)

// ComputeLRC returns the XOR-32 checksum the luminaire firmware uses for
// file-transfer integrity.  The data is treated as if zero-padded to a
// multiple of the 512-byte block size, then folded four bytes at a time,
// little-endian, into a running 32-bit XOR.  Because XOR is associative, the
// LRC of a whole file equals the XOR of its per-block LRCs.
func ComputeLRC(data []byte) uint32 {
	// Zero padding contributes nothing to an XOR, so only whole 4-byte
	// words plus one ragged tail need folding.
	var sum uint32
	n := len(data)
	full := n - n%4
	for i := 0; i < full; i += 4 {
		sum ^= uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
	}
	if full < n {
		var word uint32
		for shift := 0; full < n; full, shift = full+1, shift+8 {
			word |= uint32(data[full]) << shift
		}
		sum ^= word
	}
	return sum
}

// ComputeFileLRC computes the XOR-32 checksum of a local file, so callers
// can pre-validate a file before upload or compare it against the
// device-side LRC query.
func ComputeFileLRC(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var sum uint32
	buf := make([]byte, common.BlockSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			sum ^= ComputeLRC(buf[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return sum, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
