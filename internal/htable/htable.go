// Package htable implements a chained hash table keyed by arbitrary byte
// strings. It is the clustering index of the engine: composite keys are
// moved into the table without copying and looked up by content.
package htable

import (
	"bytes"
	"encoding/binary"
)

const (
	loadFactor = 8
	growFactor = 8
	minBuckets = 8
	wordSize   = 8
	hashFactor = 33
)

type entry struct {
	next  *entry
	key   []byte
	value []byte
	hval  uint64
}

// Table maps byte-string keys to byte-string values. The zero value is not
// usable; create tables with New. A Table is not safe for concurrent use.
type Table struct {
	buckets []*entry
	entries int
}

// New creates a table sized for roughly estimatedSize entries.
func New(estimatedSize int) *Table {
	n := estimatedSize / loadFactor
	if n < minBuckets {
		n = minBuckets
	}
	return &Table{buckets: make([]*entry, n)}
}

// Hash returns the polynomial hash of key. Identical byte content always
// hashes to the same value.
func Hash(key []byte) uint64 {
	var h uint64
	for len(key) >= wordSize {
		h = h*hashFactor + binary.LittleEndian.Uint64(key)
		key = key[wordSize:]
	}
	for _, c := range key {
		h = h*hashFactor + uint64(c)
	}
	return h
}

// Len returns the number of entries.
func (t *Table) Len() int { return t.entries }

// BucketCount returns the current number of buckets.
func (t *Table) BucketCount() int { return len(t.buckets) }

// Add inserts a copy of key and value. It returns false, leaving the table
// unchanged, if key is already present.
func (t *Table) Add(key, value []byte) bool {
	return t.add(key, value, true)
}

// AddOwned is like Add but takes ownership of key and value: the table
// stores the slices as given and the caller must not modify them afterwards.
func (t *Table) AddOwned(key, value []byte) bool {
	return t.add(key, value, false)
}

func (t *Table) add(key, value []byte, copyIn bool) bool {
	t.maybeGrow()
	slot, hval := t.find(key)
	if *slot != nil {
		return false
	}
	if copyIn {
		key = clone(key)
		value = clone(value)
	}
	*slot = &entry{key: key, value: value, hval: hval}
	t.entries++
	return true
}

// Set inserts key, or replaces the value stored under it with a copy of value.
func (t *Table) Set(key, value []byte) {
	t.maybeGrow()
	slot, hval := t.find(key)
	if e := *slot; e != nil {
		e.value = clone(value)
		return
	}
	*slot = &entry{key: clone(key), value: clone(value), hval: hval}
	t.entries++
}

// Find returns the value stored under key. The returned slice is owned by
// the table.
func (t *Table) Find(key []byte) ([]byte, bool) {
	slot, _ := t.find(key)
	if *slot == nil {
		return nil, false
	}
	return (*slot).value, true
}

// Unset removes key and hands ownership of its value to the caller.
func (t *Table) Unset(key []byte) ([]byte, bool) {
	slot, _ := t.find(key)
	e := *slot
	if e == nil {
		return nil, false
	}
	*slot = e.next
	t.entries--
	return e.value, true
}

// ForEach calls fn for every entry in unspecified order until fn returns
// false. fn must not mutate the table.
func (t *Table) ForEach(fn func(key, value []byte) bool) {
	for i := len(t.buckets) - 1; i >= 0; i-- {
		for e := t.buckets[i]; e != nil; e = e.next {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// ChainHistogram returns, for chain lengths 0..n-1, how many buckets hold a
// chain of that length. Longer chains are counted in the last slot.
func (t *Table) ChainHistogram(n int) []int {
	if n <= 0 {
		return nil
	}
	hist := make([]int, n)
	for _, head := range t.buckets {
		length := 0
		for e := head; e != nil; e = e.next {
			length++
		}
		if length >= n {
			length = n - 1
		}
		hist[length]++
	}
	return hist
}

// find returns the slot holding key, or the nil slot at the end of its
// chain where key would be linked.
func (t *Table) find(key []byte) (**entry, uint64) {
	hval := Hash(key)
	slot := &t.buckets[hval%uint64(len(t.buckets))]
	for *slot != nil {
		e := *slot
		if e.hval == hval && bytes.Equal(e.key, key) {
			return slot, hval
		}
		slot = &e.next
	}
	return slot, hval
}

func (t *Table) maybeGrow() {
	if t.entries/len(t.buckets) <= loadFactor {
		return
	}
	grown := make([]*entry, len(t.buckets)*growFactor)
	for _, head := range t.buckets {
		for e := head; e != nil; {
			next := e.next
			i := e.hval % uint64(len(grown))
			e.next = grown[i]
			grown[i] = e
			e = next
		}
	}
	t.buckets = grown
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
