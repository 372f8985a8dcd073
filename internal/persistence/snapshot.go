package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/SritejBommaraju/mini-redis/internal/store"
)

// Snapshot layout, little-endian:
//
//	magic "MRDB" | version u8 | count u64
//	per entry: tag u8 | keylen u32 | key
//	           tag=string: vallen u32 | val
//	           tag=hash:   nfields u32 | (flen u32 | field | vlen u32 | val)*
//	           expireAt i64 (0 = none)
//	trailer: xxhash64 of everything above, u64
const (
	snapshotVersion = 1

	tagString byte = 1
	tagHash   byte = 2
)

var snapshotMagic = [4]byte{'M', 'R', 'D', 'B'}

var ErrBadSnapshot = errors.New("snapshot corrupt or truncated")

// SaveSnapshot writes the full keyspace to path. The file is staged
// next to the target and renamed into place so a crash mid-write never
// leaves a half-written snapshot behind.
func SaveSnapshot(path string, db *store.DB) error {
	data := encodeSnapshot(db.Dump())

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encodeSnapshot(entries []store.DumpEntry) []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write(snapshotMagic[:])
	buf.WriteByte(snapshotVersion)
	binary.Write(buf, binary.LittleEndian, uint64(len(entries)))

	for _, ent := range entries {
		switch ent.Kind {
		case store.KindString:
			buf.WriteByte(tagString)
			writeBlob(buf, []byte(ent.Key))
			writeBlob(buf, ent.Value)
		case store.KindHash:
			buf.WriteByte(tagHash)
			writeBlob(buf, []byte(ent.Key))
			binary.Write(buf, binary.LittleEndian, uint32(len(ent.Fields)))
			for field, val := range ent.Fields {
				writeBlob(buf, []byte(field))
				writeBlob(buf, val)
			}
		default:
			continue
		}
		binary.Write(buf, binary.LittleEndian, ent.ExpireAt)
	}

	binary.Write(buf, binary.LittleEndian, xxhash.Sum64(buf.Bytes()))
	return buf.Bytes()
}

// LoadSnapshot replaces db's contents with the snapshot at path. The
// file is fully decoded and verified before the live keyspace is
// touched; any decode failure leaves the prior state in place.
func LoadSnapshot(path string, db *store.DB) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	entries, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	db.Restore(entries)
	return nil
}

func decodeSnapshot(data []byte) ([]store.DumpEntry, error) {
	if len(data) < len(snapshotMagic)+1+8+8 {
		return nil, ErrBadSnapshot
	}
	if !bytes.Equal(data[:4], snapshotMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadSnapshot)
	}
	if data[4] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, data[4])
	}

	body, trailer := data[:len(data)-8], data[len(data)-8:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(trailer) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadSnapshot)
	}

	cur := &cursor{buf: body, pos: 5}
	count, err := cur.u64()
	if err != nil {
		return nil, err
	}

	entries := make([]store.DumpEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		tag, err := cur.u8()
		if err != nil {
			return nil, err
		}
		key, err := cur.blob()
		if err != nil {
			return nil, err
		}
		ent := store.DumpEntry{Key: string(key)}

		switch tag {
		case tagString:
			ent.Kind = store.KindString
			val, err := cur.blob()
			if err != nil {
				return nil, err
			}
			ent.Value = val
		case tagHash:
			ent.Kind = store.KindHash
			nfields, err := cur.u32()
			if err != nil {
				return nil, err
			}
			ent.Fields = make(map[string][]byte, nfields)
			for j := uint32(0); j < nfields; j++ {
				field, err := cur.blob()
				if err != nil {
					return nil, err
				}
				val, err := cur.blob()
				if err != nil {
					return nil, err
				}
				ent.Fields[string(field)] = val
			}
		default:
			return nil, fmt.Errorf("%w: unknown tag %d", ErrBadSnapshot, tag)
		}

		expireAt, err := cur.i64()
		if err != nil {
			return nil, err
		}
		ent.ExpireAt = expireAt
		entries = append(entries, ent)
	}
	return entries, nil
}

func writeBlob(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.LittleEndian, uint32(len(b)))
	buf.Write(b)
}

// cursor reads length-prefixed fields, checking every read against the
// remaining buffer.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || len(c.buf)-c.pos < n {
		return nil, ErrBadSnapshot
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) u8() (byte, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) i64() (int64, error) {
	v, err := c.u64()
	return int64(v), err
}

func (c *cursor) blob() ([]byte, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	b, err := c.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}
