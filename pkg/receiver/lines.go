package receiver

import "bytes"

// DefaultMaxLine caps a buffered line. Commands are short tokens.
const DefaultMaxLine = 4096

// LineBuffer reassembles newline-delimited lines from arbitrary chunks.
// A line longer than Max is discarded up to and including its terminator.
type LineBuffer struct {
	Max int // zero means DefaultMaxLine

	buf        []byte
	discarding bool
	overflows  uint64
}

// Feed appends p and returns every complete line in arrival order, without
// the terminator. A trailing partial line stays buffered.
func (b *LineBuffer) Feed(p []byte) [][]byte {
	var lines [][]byte
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			b.appendPartial(p)
			break
		}
		b.appendPartial(p[:i])
		if b.discarding {
			b.discarding = false
		} else {
			line := make([]byte, len(b.buf))
			copy(line, b.buf)
			lines = append(lines, line)
		}
		b.buf = b.buf[:0]
		p = p[i+1:]
	}
	return lines
}

func (b *LineBuffer) appendPartial(p []byte) {
	if b.discarding {
		return
	}
	max := b.Max
	if max <= 0 {
		max = DefaultMaxLine
	}
	if len(b.buf)+len(p) > max {
		b.buf = nil
		b.discarding = true
		b.overflows++
		return
	}
	b.buf = append(b.buf, p...)
}

// Pending returns the number of buffered bytes without a terminator.
func (b *LineBuffer) Pending() int {
	return len(b.buf)
}

// Overflows returns how many lines were discarded for exceeding Max.
func (b *LineBuffer) Overflows() uint64 {
	return b.overflows
}
