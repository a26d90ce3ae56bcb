package httpclient

import "bytes"

const (
	framePrefix  = "data: "
	doneSentinel = "[DONE]"
)

// frameBuffer reassembles newline-delimited frames from chunks that do not
// line up with frame boundaries. The zero value is ready to use.
type frameBuffer struct {
	carry []byte
}

// feed appends chunk to the carried-over partial line and passes every
// complete line to fn. The last, possibly incomplete, line is kept for the
// next call. feed stops and returns false as soon as fn returns false.
func (b *frameBuffer) feed(chunk []byte, fn func(line []byte) bool) bool {
	b.carry = append(b.carry, chunk...)

	start := 0
	for {
		i := bytes.IndexByte(b.carry[start:], '\n')
		if i < 0 {
			break
		}
		line := b.carry[start : start+i]
		start += i + 1
		if !fn(line) {
			b.carry = b.carry[:0]
			return false
		}
	}

	b.carry = append(b.carry[:0], b.carry[start:]...)
	return true
}

// flush hands the remaining partial line, if any, to fn as a final frame.
func (b *frameBuffer) flush(fn func(line []byte) bool) bool {
	if len(b.carry) == 0 {
		return true
	}
	line := b.carry
	b.carry = nil
	return fn(line)
}

// framePayload returns the payload of a "data: " frame. Any other line is
// not significant.
func framePayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(framePrefix)) {
		return nil, false
	}
	return line[len(framePrefix):], true
}
