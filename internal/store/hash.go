package store

// HSet writes one field of the Hash at key and reports whether the
// field was newly created. A key currently holding a String is a type
// error; SET going the other way replaces the Hash wholesale.
func (db *DB) HSet(key, field string, value []byte) (created bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		ent = db.insert(key)
		ent.kind = KindHash
		ent.hash = make(map[string][]byte)
	} else {
		if ent.kind != KindHash {
			return false, ErrWrongType
		}
		db.touch(ent)
	}
	_, existed := ent.hash[field]
	ent.hash[field] = append([]byte(nil), value...)
	db.evict()
	return !existed, nil
}

// HGet reads one field of the Hash at key. ok is false when the key or
// field is absent.
func (db *DB) HGet(key, field string) (value []byte, ok bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return nil, false, nil
	}
	if ent.kind != KindHash {
		return nil, false, ErrWrongType
	}
	db.touch(ent)
	val, ok := ent.hash[field]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}
