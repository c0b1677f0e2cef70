package ember

import (
	"math"

	"github.com/dchest/siphash"
)

// hashSeed0/hashSeed1 key the siphash used to scatter every Value hashed
// into a Table bucket or cached onto a StringObj's header. They are
// randomized once per process (see initHashSeed in memory.go) so that two
// runs of the same program don't collide on the same buckets.
var hashSeed0, hashSeed1 uint64

// hashValue computes the table-bucket hash for any Value. Strings use
// their cached header hash (computed once, at creation, by internString);
// tuples combine their element hashes, computed on first use and cached
// under flagValidHash; every other object hashes off its allocation-order
// id, which is cheap and stable for the object's lifetime.
func hashValue(v Value) uint64 {
	switch v.kind {
	case kindObject:
		if s, ok := v.obj.(*StringObj); ok {
			return s.hash
		}
		if t, ok := v.obj.(*TupleObj); ok {
			if !t.is(flagValidHash) {
				acc := uint64(0x345678)
				for _, item := range t.Items {
					acc = acc*1000003 ^ hashValue(item)
				}
				t.hash = acc
				t.set(flagValidHash)
			}
			return t.hash
		}
		return siphash.Hash(hashSeed0, hashSeed1, idBytes(v.obj.header().id))
	case kindInt:
		return siphash.Hash(hashSeed0, hashSeed1, u64Bytes(v.bits))
	case kindFloat:
		f := v.AsFloat()
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return siphash.Hash(hashSeed0, hashSeed1, u64Bytes(uint64(int64(f))))
		}
		return siphash.Hash(hashSeed0, hashSeed1, u64Bytes(v.bits))
	case kindBool:
		return siphash.Hash(hashSeed0, hashSeed1, u64Bytes(v.bits))
	case kindNone:
		return 0
	case kindNotImplemented:
		return 1
	case kindKwargs:
		return siphash.Hash(hashSeed0, hashSeed1, u64Bytes(v.bits|1<<40))
	default:
		return siphash.Hash(hashSeed0, hashSeed1, u64Bytes(v.bits))
	}
}

// hashStringBytes computes the cached hash stored on a StringObj's header
// at creation time, so later hashValue calls for that string are a field
// read rather than a re-hash.
func hashStringBytes(b []byte) uint64 {
	return siphash.Hash(hashSeed0, hashSeed1, b)
}

func idBytes(id uint64) []byte { return u64Bytes(id) }

func u64Bytes(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotOccupied
)

type tableEntry struct {
	state slotState
	key   Value
	value Value
}

// Table is an open-addressed hash table with tombstone deletion. It backs
// instance fields, class method tables, module globals, and dict/set
// contents (the string interner is a plain Go map, see memory.go). Keys
// are compared with valuesSame, which for interned strings
// is a pointer comparison, so lookups never have to re-examine string
// contents once a string has been interned.
type Table struct {
	entries []tableEntry
	count   int // occupied + tombstone slots
	live    int // occupied slots only
}

const tableMaxLoad = 0.75

func NewTable() *Table { return &Table{} }

func (t *Table) Count() int { return t.live }

func (t *Table) Get(key Value) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	idx := findSlot(t.entries, key)
	e := &t.entries[idx]
	if e.state != slotOccupied {
		return Value{}, false
	}
	return e.value, true
}

func (t *Table) Has(key Value) bool {
	_, ok := t.Get(key)
	return ok
}

// Set stores key->value, returning true if this is a brand new key.
func (t *Table) Set(key Value, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	idx := findSlot(t.entries, key)
	e := &t.entries[idx]
	isNew := e.state != slotOccupied
	if isNew && e.state == slotEmpty {
		t.count++
	}
	e.state = slotOccupied
	e.key = key
	e.value = value
	if isNew {
		t.live++
	}
	return isNew
}

func (t *Table) Delete(key Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := findSlot(t.entries, key)
	e := &t.entries[idx]
	if e.state != slotOccupied {
		return false
	}
	e.state = slotTombstone
	e.key = Value{}
	e.value = Value{}
	t.live--
	return true
}

// AddAll copies every entry of src into t, overwriting duplicates.
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if e.state == slotOccupied {
			t.Set(e.key, e.value)
		}
	}
}

// Each calls fn for every occupied entry; fn must not mutate the table.
func (t *Table) Each(fn func(key, value Value)) {
	for _, e := range t.entries {
		if e.state == slotOccupied {
			fn(e.key, e.value)
		}
	}
}

// RemoveWhite deletes every entry whose object key is unmarked, so that
// entries keyed by objects that died during the last collection don't
// keep those objects alive. isWhite reports whether an object failed to be
// marked during the current trace.
func (t *Table) RemoveWhite(isWhite func(heapObj) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.state != slotOccupied || !e.key.IsObject() {
			continue
		}
		if isWhite(e.key.obj) {
			e.state = slotTombstone
			e.key = Value{}
			e.value = Value{}
			t.live--
		}
	}
}

func findSlot(entries []tableEntry, key Value) int {
	cap := len(entries)
	idx := int(hashValue(key) % uint64(cap))
	tombstone := -1
	for {
		e := &entries[idx]
		switch e.state {
		case slotEmpty:
			if tombstone != -1 {
				return tombstone
			}
			return idx
		case slotTombstone:
			if tombstone == -1 {
				tombstone = idx
			}
		default:
			if valuesSame(e.key, key) {
				return idx
			}
		}
		idx = (idx + 1) % cap
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	newEntries := make([]tableEntry, newCap)
	t.live = 0
	t.count = 0
	old := t.entries
	t.entries = newEntries
	for _, e := range old {
		if e.state != slotOccupied {
			continue
		}
		idx := findSlot(t.entries, e.key)
		t.entries[idx] = tableEntry{state: slotOccupied, key: e.key, value: e.value}
		t.live++
		t.count++
	}
}
