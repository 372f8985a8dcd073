package persistence

import (
	"errors"
	"os"
	"strconv"

	"github.com/SritejBommaraju/mini-redis/internal/resp"
	"github.com/SritejBommaraju/mini-redis/internal/store"
)

// Replay applies the append log at path to db in file order. Records
// are the same frames the wire codec reads. A malformed record is
// skipped by scanning forward to the next frame start, and a truncated
// trailing record is dropped silently, so a crash mid-append never
// poisons recovery.
func Replay(path string, db *store.DB) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var parser resp.Parser
	parser.Append(data)
	for {
		frame, err := parser.Next()
		if err != nil {
			if errors.Is(err, resp.ErrIncomplete) {
				return nil
			}
			if !parser.SkipToFrameStart() {
				return nil
			}
			continue
		}
		applyRecord(frame, db)
	}
}

func applyRecord(frame [][]byte, db *store.DB) {
	if len(frame) == 0 {
		return
	}
	switch string(frame[0]) {
	case "SET":
		if len(frame) == 3 {
			db.Set(string(frame[1]), frame[2])
		}
	case "DEL":
		if len(frame) == 2 {
			db.Del(string(frame[1]))
		}
	case "EXPIRE":
		if len(frame) == 3 {
			secs, err := strconv.ParseInt(string(frame[2]), 10, 64)
			if err == nil {
				db.Expire(string(frame[1]), secs)
			}
		}
	case "HSET":
		if len(frame) == 4 {
			db.HSet(string(frame[1]), string(frame[2]), frame[3])
		}
	}
}
