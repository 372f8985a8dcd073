package store

import (
	"container/list"
	"errors"
	"sort"
	"sync"
	"time"
)

// Kind is the type tag of an entry. A key holds exactly one kind at a
// time.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindHash
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindHash:
		return "hash"
	default:
		return "none"
	}
}

var (
	// ErrWrongType is returned when an operation is applied to a key
	// holding the other kind of value.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	// ErrNotInteger covers unparseable counters and int64 overflow.
	ErrNotInteger = errors.New("value is not an integer or out of range")
)

type entry struct {
	kind     Kind
	str      []byte
	hash     map[string][]byte
	expireAt int64 // unix seconds, 0 = no expiration
	elem     *list.Element
}

// Options configure a DB.
type Options struct {
	// MaxKeys bounds the key count; after every mutation the least
	// recently used keys are evicted until the bound holds. 0 means
	// unbounded.
	MaxKeys int
	// Now reports the current unix time in seconds. Nil uses the wall
	// clock; tests inject their own.
	Now func() int64
}

// DB is one logical database: a map of typed entries plus a recency
// list kept in bijection with it. Every operation runs under one lock,
// purges the touched key if its expiration has passed, and write paths
// run the eviction check before returning.
type DB struct {
	mu      sync.Mutex
	entries map[string]*entry
	recency *list.List // of string keys; front = most recently used
	maxKeys int
	now     func() int64
}

func New(opts Options) *DB {
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &DB{
		entries: make(map[string]*entry),
		recency: list.New(),
		maxKeys: opts.MaxKeys,
		now:     now,
	}
}

// lookup returns the live entry for key, purging it first if expired.
// Callers hold db.mu.
func (db *DB) lookup(key string) *entry {
	ent, ok := db.entries[key]
	if !ok {
		return nil
	}
	if ent.expireAt != 0 && ent.expireAt <= db.now() {
		db.remove(key, ent)
		return nil
	}
	return ent
}

// touch moves key to the most-recent end. Callers hold db.mu.
func (db *DB) touch(ent *entry) {
	db.recency.MoveToFront(ent.elem)
}

// insert creates a fresh entry for key at the most-recent position.
// Callers hold db.mu.
func (db *DB) insert(key string) *entry {
	ent := &entry{}
	ent.elem = db.recency.PushFront(key)
	db.entries[key] = ent
	return ent
}

// remove deletes the entry and its recency node together. Callers hold
// db.mu.
func (db *DB) remove(key string, ent *entry) {
	db.recency.Remove(ent.elem)
	delete(db.entries, key)
}

// evict trims least-recently-used keys until the bound holds. Callers
// hold db.mu and must have already touched the key they just wrote, so
// it is never the victim.
func (db *DB) evict() {
	if db.maxKeys <= 0 {
		return
	}
	for len(db.entries) > db.maxKeys {
		back := db.recency.Back()
		if back == nil {
			return
		}
		key := back.Value.(string)
		db.remove(key, db.entries[key])
	}
}

// Set stores value under key as a String, replacing any Hash held
// there.
func (db *DB) Set(key string, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		ent = db.insert(key)
	} else {
		db.touch(ent)
	}
	ent.kind = KindString
	ent.str = append([]byte(nil), value...)
	ent.hash = nil
	ent.expireAt = 0
	db.evict()
}

// Get returns the String value of key. ok is false when the key is
// absent; ErrWrongType when it holds a Hash.
func (db *DB) Get(key string) (value []byte, ok bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return nil, false, nil
	}
	if ent.kind != KindString {
		return nil, false, ErrWrongType
	}
	db.touch(ent)
	return append([]byte(nil), ent.str...), true, nil
}

// Del removes the key regardless of kind and reports whether anything
// was removed.
func (db *DB) Del(key string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return false
	}
	db.remove(key, ent)
	return true
}

func (db *DB) Exists(key string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lookup(key) != nil
}

// Len is the current key count. Expired-but-untouched keys still count
// until accessed or swept.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.entries)
}

// Keys sweeps expiration across the whole keyspace and returns the
// surviving keys, sorted.
func (db *DB) Keys() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.sweep()
	out := make([]string, 0, len(db.entries))
	for key := range db.entries {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// sweep purges every expired entry. Callers hold db.mu.
func (db *DB) sweep() {
	now := db.now()
	for key, ent := range db.entries {
		if ent.expireAt != 0 && ent.expireAt <= now {
			db.remove(key, ent)
		}
	}
}

// Expire sets an absolute expiration now+seconds on an existing key and
// reports whether it was set. Zero or negative seconds make the key
// expire on its next access.
func (db *DB) Expire(key string, seconds int64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return false
	}
	ent.expireAt = db.now() + seconds
	db.touch(ent)
	return true
}

// TTL returns -2 for an absent key, -1 for a key without expiration,
// and the remaining whole seconds otherwise. The remainder is always
// positive: an already-expired key is purged by the lookup.
func (db *DB) TTL(key string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return -2
	}
	if ent.expireAt == 0 {
		return -1
	}
	return ent.expireAt - db.now()
}

// Type reports the kind currently held at key.
func (db *DB) Type(key string) Kind {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return KindNone
	}
	return ent.kind
}
