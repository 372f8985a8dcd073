package resp

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

var ErrInvalidReply = errors.New("invalid reply")

// Reply is one decoded server reply, used by the client-side tools.
type Reply struct {
	Kind  byte // '+', '-', ':', '$', '*'
	Str   string
	Int   int64
	Bulk  []byte
	IsNil bool
	Elems []Reply
}

// ReadReply decodes a single reply from r.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readReplyLine(r)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, ErrInvalidReply
	}
	kind, rest := line[0], line[1:]
	switch kind {
	case '+':
		return Reply{Kind: kind, Str: rest}, nil
	case '-':
		return Reply{Kind: kind, Str: rest}, nil
	case ':':
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Reply{}, ErrInvalidReply
		}
		return Reply{Kind: kind, Int: n}, nil
	case '$':
		size, err := strconv.Atoi(rest)
		if err != nil || size < -1 {
			return Reply{}, ErrInvalidReply
		}
		if size == -1 {
			return Reply{Kind: kind, IsNil: true}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Reply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return Reply{}, ErrInvalidReply
		}
		return Reply{Kind: kind, Bulk: buf[:size]}, nil
	case '*':
		count, err := strconv.Atoi(rest)
		if err != nil || count < 0 {
			return Reply{}, ErrInvalidReply
		}
		elems := make([]Reply, 0, count)
		for i := 0; i < count; i++ {
			elem, err := ReadReply(r)
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, elem)
		}
		return Reply{Kind: kind, Elems: elems}, nil
	default:
		return Reply{}, ErrInvalidReply
	}
}

func readReplyLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
