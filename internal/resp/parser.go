package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrIncomplete is returned by Next when the buffer does not yet hold a
// full frame. The buffer is left untouched; append more bytes and retry.
var ErrIncomplete = errors.New("incomplete frame")

// ProtocolError reports a malformed frame at the head of the buffer. The
// parser does not resynchronize on its own; callers either close the
// connection or call SkipToFrameStart.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

func protoErrf(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Parser is an incremental decoder for request frames. Bytes arrive in
// arbitrary chunks via Append; Next consumes at most one complete frame
// per call. A single Append may complete several pipelined frames, so
// callers loop on Next until ErrIncomplete.
type Parser struct {
	buf []byte
}

func (p *Parser) Append(data []byte) {
	p.buf = append(p.buf, data...)
}

// Buffered returns the number of unconsumed bytes.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Next decodes one frame from the front of the buffer. The first element
// of a decoded frame is uppercased for case-insensitive command matching.
// A null bulk element decodes to a nil slice, a zero-length bulk to an
// empty non-nil slice.
func (p *Parser) Next() ([][]byte, error) {
	if len(p.buf) == 0 {
		return nil, ErrIncomplete
	}
	if p.buf[0] != '*' {
		return nil, protoErrf("expected '*', got %q", p.buf[0])
	}
	pos := 1

	line, n, ok := readLine(p.buf[pos:])
	if !ok {
		return nil, ErrIncomplete
	}
	pos += n
	count, err := strconv.Atoi(string(line))
	if err != nil || count <= 0 {
		return nil, protoErrf("invalid array length %q", line)
	}

	frame := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(p.buf) {
			return nil, ErrIncomplete
		}
		if p.buf[pos] != '$' {
			return nil, protoErrf("expected '$', got %q", p.buf[pos])
		}
		pos++
		line, n, ok = readLine(p.buf[pos:])
		if !ok {
			return nil, ErrIncomplete
		}
		pos += n
		size, err := strconv.Atoi(string(line))
		if err != nil || size < -1 {
			return nil, protoErrf("invalid bulk length %q", line)
		}
		if size == -1 {
			frame = append(frame, nil)
			continue
		}
		if len(p.buf)-pos < size+2 {
			return nil, ErrIncomplete
		}
		elem := make([]byte, size)
		copy(elem, p.buf[pos:pos+size])
		pos += size
		if p.buf[pos] != '\r' || p.buf[pos+1] != '\n' {
			return nil, protoErrf("bulk string missing CRLF terminator")
		}
		pos += 2
		frame = append(frame, elem)
	}

	p.buf = p.buf[pos:]
	if len(frame) > 0 && frame[0] != nil {
		frame[0] = bytes.ToUpper(frame[0])
	}
	return frame, nil
}

// SkipToFrameStart discards the malformed head up to the next '*' so a
// caller can attempt recovery after a ProtocolError. It reports whether
// a candidate frame start remains in the buffer.
func (p *Parser) SkipToFrameStart() bool {
	if len(p.buf) == 0 {
		return false
	}
	idx := bytes.IndexByte(p.buf[1:], '*')
	if idx < 0 {
		p.buf = nil
		return false
	}
	p.buf = p.buf[1+idx:]
	return true
}

// readLine returns the bytes before the first CRLF and the total number
// of bytes consumed including the terminator.
func readLine(buf []byte) (line []byte, n int, ok bool) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return nil, 0, false
	}
	return buf[:idx], idx + 2, true
}
