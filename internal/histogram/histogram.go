package histogram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Letters is the number of counters in a histogram, one per letter a-z.
const Letters = 26

// BlockSize is the wire size of one result block: 26 big-endian uint32.
const BlockSize = Letters * 4

// Counts holds the per-letter totals for a-z, case-folded.
type Counts [Letters]uint32

// Compute counts the letters in data, case-insensitively. Pure function:
// the same input always yields the same counts.
func Compute(data []byte) Counts {
	var c Counts
	for _, b := range data {
		switch {
		case b >= 'a' && b <= 'z':
			c[b-'a']++
		case b >= 'A' && b <= 'Z':
			c[b-'A']++
		}
	}
	return c
}

// Total returns the sum of all 26 counters. Never exceeds the length of
// the input the counts were computed from.
func (c Counts) Total() uint64 {
	var total uint64
	for _, n := range c {
		total += uint64(n)
	}
	return total
}

// AppendBinary appends the fixed-size wire form of the counts to buf.
func (c Counts) AppendBinary(buf []byte) []byte {
	for _, n := range c {
		buf = binary.BigEndian.AppendUint32(buf, n)
	}
	return buf
}

// ReadBlock reads exactly one result block from r. Returns io.EOF when the
// stream ends before any result byte, io.ErrUnexpectedEOF on a partial
// block.
func ReadBlock(r io.Reader) (Counts, error) {
	var buf [BlockSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Counts{}, err
	}

	var c Counts
	for i := range c {
		c[i] = binary.BigEndian.Uint32(buf[i*4:])
	}
	return c, nil
}

// Lines renders the counts as 26 newline-terminated "<letter>=<count>"
// lines, a-z in order, no header or footer.
func (c Counts) Lines() []byte {
	var b bytes.Buffer
	for i, n := range c {
		fmt.Fprintf(&b, "%c=%d\n", 'a'+i, n)
	}
	return b.Bytes()
}
