package store

import "strconv"

// IncrBy adjusts the integer stored at key by delta and returns the new
// value. An absent key counts from 0. The stored text must be a base-10
// signed 64-bit integer and the result must not overflow; either way the
// stored value is left untouched on error.
func (db *DB) IncrBy(key string, delta int64) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var cur int64
	ent := db.lookup(key)
	if ent != nil {
		if ent.kind != KindString {
			return 0, ErrWrongType
		}
		parsed, err := strconv.ParseInt(string(ent.str), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		cur = parsed
	}

	next := cur + delta
	if (delta > 0 && next < cur) || (delta < 0 && next > cur) {
		return 0, ErrNotInteger
	}

	if ent == nil {
		ent = db.insert(key)
		ent.kind = KindString
	} else {
		db.touch(ent)
	}
	ent.str = strconv.AppendInt(ent.str[:0], next, 10)
	db.evict()
	return next, nil
}

// Append concatenates suffix onto the String at key, treating an absent
// key as empty, and returns the new length.
func (db *DB) Append(key string, suffix []byte) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		ent = db.insert(key)
		ent.kind = KindString
	} else {
		if ent.kind != KindString {
			return 0, ErrWrongType
		}
		db.touch(ent)
	}
	ent.str = append(ent.str, suffix...)
	db.evict()
	return len(ent.str), nil
}

// StrLen returns the byte length of the String at key, 0 when absent.
func (db *DB) StrLen(key string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ent := db.lookup(key)
	if ent == nil {
		return 0, nil
	}
	if ent.kind != KindString {
		return 0, ErrWrongType
	}
	db.touch(ent)
	return len(ent.str), nil
}
