package server

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/SritejBommaraju/mini-redis/internal/persistence"
	"github.com/SritejBommaraju/mini-redis/internal/resp"
	"github.com/SritejBommaraju/mini-redis/internal/store"
)

// command is the closed set of command kinds; every frame resolves to
// one of these through a single switch.
type command int

const (
	cmdUnknown command = iota
	cmdPing
	cmdEcho
	cmdSet
	cmdGet
	cmdDel
	cmdExists
	cmdKeys
	cmdExpire
	cmdTTL
	cmdMGet
	cmdIncr
	cmdDecr
	cmdIncrBy
	cmdDecrBy
	cmdAppend
	cmdStrLen
	cmdHSet
	cmdHGet
	cmdSelect
	cmdInfo
	cmdSave
	cmdLoad
	cmdSubscribe
	cmdPublish
	cmdAuth
	cmdEval
	cmdQuit
)

var commandNames = map[string]command{
	"PING":      cmdPing,
	"ECHO":      cmdEcho,
	"SET":       cmdSet,
	"GET":       cmdGet,
	"DEL":       cmdDel,
	"EXISTS":    cmdExists,
	"KEYS":      cmdKeys,
	"EXPIRE":    cmdExpire,
	"TTL":       cmdTTL,
	"MGET":      cmdMGet,
	"INCR":      cmdIncr,
	"DECR":      cmdDecr,
	"INCRBY":    cmdIncrBy,
	"DECRBY":    cmdDecrBy,
	"APPEND":    cmdAppend,
	"STRLEN":    cmdStrLen,
	"HSET":      cmdHSet,
	"HGET":      cmdHGet,
	"SELECT":    cmdSelect,
	"INFO":      cmdInfo,
	"SAVE":      cmdSave,
	"LOAD":      cmdLoad,
	"SUBSCRIBE": cmdSubscribe,
	"PUBLISH":   cmdPublish,
	"AUTH":      cmdAuth,
	"EVAL":      cmdEval,
	"QUIT":      cmdQuit,
}

type result struct {
	reply []byte
	close bool
}

func ok() result { return result{reply: resp.SimpleString("OK")} }

func errf(format string, args ...interface{}) result {
	return result{reply: resp.Error(fmt.Sprintf(format, args...))}
}

// logMutation pushes one durability record to the append log and the
// replica set. Failures here stay local: they are never surfaced to the
// client whose command triggered them.
func (s *Server) logMutation(name string, args ...[]byte) {
	s.stats.RecordMutation()
	record := resp.CommandArray(name, args...)
	if s.aof != nil {
		if err := s.aof.Append(record); err != nil {
			log.Printf("aof: append %s: %v", name, err)
		}
	}
	if s.repl != nil {
		s.repl.Replicate(record)
	}
}

func (s *Server) dispatch(cl *client, frame [][]byte) result {
	s.stats.RecordCommand()
	cl.requests++

	name := string(frame[0])
	args := frame[1:]
	db := s.dbs[cl.dbIndex]

	switch commandNames[name] {
	case cmdPing:
		if len(args) == 1 {
			return result{reply: resp.BulkString(args[0])}
		}
		return result{reply: resp.SimpleString("PONG")}

	case cmdEcho:
		if len(args) != 1 {
			return errf("ECHO requires a message")
		}
		return result{reply: resp.BulkString(args[0])}

	case cmdSet:
		if len(args) != 2 {
			return errf("SET requires key and value")
		}
		db.Set(string(args[0]), args[1])
		s.logMutation("SET", args...)
		return ok()

	case cmdGet:
		if len(args) != 1 {
			return errf("GET requires a key")
		}
		val, found, err := db.Get(string(args[0]))
		if err != nil {
			return errf("%s", err)
		}
		if !found {
			return result{reply: resp.NullBulk()}
		}
		return result{reply: resp.BulkString(val)}

	case cmdDel:
		if len(args) != 1 {
			return errf("DEL requires a key")
		}
		removed := db.Del(string(args[0]))
		if removed {
			s.logMutation("DEL", args...)
			return result{reply: resp.Integer(1)}
		}
		return result{reply: resp.Integer(0)}

	case cmdExists:
		if len(args) != 1 {
			return errf("EXISTS requires a key")
		}
		if db.Exists(string(args[0])) {
			return result{reply: resp.Integer(1)}
		}
		return result{reply: resp.Integer(0)}

	case cmdKeys:
		if len(args) != 1 || string(args[0]) != "*" {
			return errf("KEYS only supports wildcard *")
		}
		keys := db.Keys()
		items := make([][]byte, len(keys))
		for i, k := range keys {
			items[i] = []byte(k)
		}
		return result{reply: resp.Array(items)}

	case cmdExpire:
		if len(args) != 2 {
			return errf("EXPIRE requires key and seconds")
		}
		secs, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return errf("Invalid seconds value")
		}
		if db.Expire(string(args[0]), secs) {
			s.logMutation("EXPIRE", args...)
			return result{reply: resp.Integer(1)}
		}
		return result{reply: resp.Integer(0)}

	case cmdTTL:
		if len(args) != 1 {
			return errf("TTL requires a key")
		}
		return result{reply: resp.Integer(db.TTL(string(args[0])))}

	case cmdMGet:
		if len(args) == 0 {
			return errf("MGET requires at least one key")
		}
		items := make([][]byte, len(args))
		for i, key := range args {
			val, found, err := db.Get(string(key))
			if err != nil || !found {
				items[i] = nil // miss and wrong type both read as nil
				continue
			}
			items[i] = val
		}
		return result{reply: resp.Array(items)}

	case cmdIncr, cmdDecr:
		if len(args) != 1 {
			return errf("%s requires a key", name)
		}
		delta := int64(1)
		if commandNames[name] == cmdDecr {
			delta = -1
		}
		val, err := db.IncrBy(string(args[0]), delta)
		if err != nil {
			return errf("%s", err)
		}
		return result{reply: resp.Integer(val)}

	case cmdIncrBy, cmdDecrBy:
		if len(args) != 2 {
			return errf("%s requires key and increment", name)
		}
		delta, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return errf("%s", store.ErrNotInteger)
		}
		if commandNames[name] == cmdDecrBy {
			delta = -delta
		}
		val, err := db.IncrBy(string(args[0]), delta)
		if err != nil {
			return errf("%s", err)
		}
		return result{reply: resp.Integer(val)}

	case cmdAppend:
		if len(args) != 2 {
			return errf("APPEND requires key and value")
		}
		length, err := db.Append(string(args[0]), args[1])
		if err != nil {
			return errf("%s", err)
		}
		return result{reply: resp.Integer(int64(length))}

	case cmdStrLen:
		if len(args) != 1 {
			return errf("STRLEN requires a key")
		}
		length, err := db.StrLen(string(args[0]))
		if err != nil {
			return errf("%s", err)
		}
		return result{reply: resp.Integer(int64(length))}

	case cmdHSet:
		if len(args) != 3 {
			return errf("HSET requires key, field, and value")
		}
		created, err := db.HSet(string(args[0]), string(args[1]), args[2])
		if err != nil {
			return errf("%s", err)
		}
		s.logMutation("HSET", args...)
		if created {
			return result{reply: resp.Integer(1)}
		}
		return result{reply: resp.Integer(0)}

	case cmdHGet:
		if len(args) != 2 {
			return errf("HGET requires key and field")
		}
		val, found, err := db.HGet(string(args[0]), string(args[1]))
		if err != nil {
			return errf("%s", err)
		}
		if !found {
			return result{reply: resp.NullBulk()}
		}
		return result{reply: resp.BulkString(val)}

	case cmdSelect:
		if len(args) != 1 {
			return errf("SELECT requires database number")
		}
		idx, err := strconv.Atoi(string(args[0]))
		if err != nil {
			return errf("Invalid database number")
		}
		if idx < 0 || idx >= len(s.dbs) {
			return errf("Database index out of range")
		}
		cl.dbIndex = idx
		return ok()

	case cmdInfo:
		info := fmt.Sprintf("uptime:%d\ntotal_keys:%d\ncommands_processed:%d\ndatabases:%d\n",
			int64(time.Since(s.started).Seconds()), s.totalKeys(), s.stats.Commands(), len(s.dbs))
		return result{reply: resp.BulkString([]byte(info))}

	case cmdSave:
		if err := persistence.SaveSnapshot(s.snapshotPath, db); err != nil {
			log.Printf("save snapshot: %v", err)
			return errf("ERR Save failed")
		}
		return ok()

	case cmdLoad:
		if err := persistence.LoadSnapshot(s.snapshotPath, db); err != nil {
			log.Printf("load snapshot: %v", err)
			return errf("ERR Load failed")
		}
		return ok()

	case cmdSubscribe:
		if len(args) == 0 {
			return errf("SUBSCRIBE requires channel name")
		}
		for _, ch := range args {
			s.pubsub.subscribe(string(ch), cl)
		}
		return ok()

	case cmdPublish:
		if len(args) != 2 {
			return errf("PUBLISH requires channel and message")
		}
		n := s.pubsub.publish(string(args[0]), args[1])
		return result{reply: resp.Integer(int64(n))}

	case cmdAuth:
		return ok()

	case cmdEval:
		return errf("ERR EVAL not implemented")

	case cmdQuit:
		return result{reply: resp.SimpleString("OK"), close: true}

	default:
		s.stats.RecordError()
		return errf("ERR unknown command '%s'", name)
	}
}
