package resp

import "strconv"

// Reply encoders. These produce complete wire fragments ready to write
// to a connection.

func SimpleString(msg string) []byte {
	return []byte("+" + msg + "\r\n")
}

func Error(msg string) []byte {
	return []byte("-" + msg + "\r\n")
}

func Integer(n int64) []byte {
	return []byte(":" + strconv.FormatInt(n, 10) + "\r\n")
}

func BulkString(val []byte) []byte {
	out := make([]byte, 0, len(val)+16)
	out = append(out, '$')
	out = strconv.AppendInt(out, int64(len(val)), 10)
	out = append(out, '\r', '\n')
	out = append(out, val...)
	return append(out, '\r', '\n')
}

func NullBulk() []byte {
	return []byte("$-1\r\n")
}

// Array encodes a reply array of bulk strings. A nil element encodes as
// a null bulk.
func Array(items [][]byte) []byte {
	out := make([]byte, 0, 16)
	out = append(out, '*')
	out = strconv.AppendInt(out, int64(len(items)), 10)
	out = append(out, '\r', '\n')
	for _, item := range items {
		if item == nil {
			out = append(out, NullBulk()...)
			continue
		}
		out = append(out, BulkString(item)...)
	}
	return out
}

// CommandArray encodes a command (name + arguments) as a request frame.
// The same encoding is used for append-log records and replication, so
// replay can feed records straight back through the Parser.
func CommandArray(name string, args ...[]byte) []byte {
	out := make([]byte, 0, 32)
	out = append(out, '*')
	out = strconv.AppendInt(out, int64(1+len(args)), 10)
	out = append(out, '\r', '\n')
	out = append(out, BulkString([]byte(name))...)
	for _, arg := range args {
		out = append(out, BulkString(arg)...)
	}
	return out
}
