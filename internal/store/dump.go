package store

import "container/list"

// DumpEntry is one key's state as it crosses the snapshot boundary.
type DumpEntry struct {
	Key      string
	Kind     Kind
	Value    []byte
	Fields   map[string][]byte
	ExpireAt int64
}

// Dump sweeps expiration and returns a copy of every live entry in
// recency order, most recently used first.
func (db *DB) Dump() []DumpEntry {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.sweep()
	out := make([]DumpEntry, 0, len(db.entries))
	for elem := db.recency.Front(); elem != nil; elem = elem.Next() {
		key := elem.Value.(string)
		ent := db.entries[key]
		de := DumpEntry{Key: key, Kind: ent.kind, ExpireAt: ent.expireAt}
		switch ent.kind {
		case KindString:
			de.Value = append([]byte(nil), ent.str...)
		case KindHash:
			de.Fields = make(map[string][]byte, len(ent.hash))
			for f, v := range ent.hash {
				de.Fields[f] = append([]byte(nil), v...)
			}
		}
		out = append(out, de)
	}
	return out
}

// Restore replaces the entire keyspace with the given entries. Recency
// is rebuilt from slice order (first entry = most recently used) and
// the eviction check runs once at the end. Prior contents are discarded
// only here, so a load that fails before calling Restore leaves the
// keyspace untouched.
func (db *DB) Restore(entries []DumpEntry) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.entries = make(map[string]*entry, len(entries))
	db.recency = list.New()
	for _, de := range entries {
		if _, dup := db.entries[de.Key]; dup {
			continue
		}
		ent := &entry{kind: de.Kind, expireAt: de.ExpireAt}
		switch de.Kind {
		case KindString:
			ent.str = append([]byte(nil), de.Value...)
		case KindHash:
			ent.hash = make(map[string][]byte, len(de.Fields))
			for f, v := range de.Fields {
				ent.hash[f] = append([]byte(nil), v...)
			}
		}
		ent.elem = db.recency.PushBack(de.Key)
		db.entries[de.Key] = ent
	}
	db.evict()
}
