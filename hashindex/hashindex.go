// Package hashindex implements a chained hash index that resolves
// generated keys to caller-supplied integer values, typically array
// indices. It is the lookup core underneath containers that keep their
// payload in a linear array: the index owns no data, only slots.
//
// The table never resizes. Its size is fixed at construction and trades
// memory for collision rate; size it for the expected number of live
// entries. Collisions resolve through per-slot chains of arena-backed
// nodes, with a trailing Unused node always present so insertion never
// special-cases the chain end.
//
// Deleted entries become tombstones. A tombstoned table slot is reusable
// by a later Add; a tombstoned chain node is reclaimed in place the next
// time an Add walks its chain. Iteration yields tombstones at the head
// position, and callers must skip Deleted values: a Deleted head does not
// mean the chain is exhausted.
//
// The index performs no internal locking. Callers needing concurrent
// access must serialize all operations externally.
package hashindex

import (
	"encoding/binary"
	"math/bits"
)

// Sentinel values returned by lookups and iteration. Caller values must
// be non-negative to stay distinguishable from these.
const (
	// Unused marks a slot or node that never held a value. Iteration
	// ends when Unused is yielded.
	Unused int32 = -1
	// Deleted marks a tombstone: the position held a value that was
	// removed. Later chain entries may still be live.
	Deleted int32 = -2
)

const nilNode int32 = -1

// AddResult reports the outcome of an Add.
type AddResult int

const (
	// Inserted means the value landed directly in the table slot.
	Inserted AddResult = iota
	// Collided means the slot was occupied and the value was appended
	// to (or reclaimed a tombstone in) the slot's chain.
	Collided
	// Duplicate means the value was already present for this key and
	// nothing was inserted.
	Duplicate
)

func (r AddResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Collided:
		return "collided"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type node struct {
	value int32
	next  int32 // arena index, nilNode terminates the chain
}

// Index is a fixed-size chained hash index.
type Index struct {
	table []int32 // per-slot head value
	nodes []node  // arena; nodes[0:len(table)] are the embedded chain heads
	mask  int32
	tombs int // chain-node tombstones awaiting reuse
}

// Stats describes index occupancy.
type Stats struct {
	TableSize     int // slot count
	OccupiedSlots int // slots holding a live value
	ChainNodes    int // overflow nodes allocated beyond the embedded heads
	Tombstones    int // chain-node tombstones available for reuse
}

// New creates an Index with at least size slots, rounded up to the next
// power of two. Larger tables cost memory and shorten chains; the table
// never grows afterward, so worsening load factor under heavy insertion
// is the caller's tradeoff to make.
func New(size int) *Index {
	if size < 2 {
		size = 2
	}
	n := 1 << bits.Len(uint(size-1))

	ix := &Index{
		table: make([]int32, n),
		nodes: make([]node, n),
		mask:  int32(n - 1),
	}
	for i := range ix.table {
		ix.table[i] = Unused
		ix.nodes[i] = node{value: Unused, next: nilNode}
	}
	return ix
}

// TableSize returns the slot count.
func (ix *Index) TableSize() int { return len(ix.table) }

// KeyFromString returns a key in [0, TableSize) derived from s.
// Deterministic, not cryptographic.
func (ix *Index) KeyFromString(s string) int32 {
	var hash, x uint32
	for i := 0; i < len(s); i++ {
		hash = (hash << 4) + uint32(s[i])
		if x = hash & 0xF0000000; x != 0 {
			hash ^= x >> 24
		}
		hash &^= x
	}
	return int32(hash) & ix.mask
}

// KeyFromInt returns a key in [0, TableSize) derived from v.
func (ix *Index) KeyFromInt(v int32) int32 {
	x := uint32(v)
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = (x >> 16) ^ x
	return int32(x) & ix.mask
}

// KeyFromPointer returns a key in [0, TableSize) derived from an
// address. Heap addresses cluster spatially, so the bit pattern is
// swizzled across word halves before hashing to spread nearby
// allocations over the table.
func (ix *Index) KeyFromPointer(p uintptr) int32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(p))

	b[1], b[5] = b[5], b[1]
	b[3], b[7] = b[7], b[3]

	lo := binary.LittleEndian.Uint32(b[0:4])
	hi := binary.LittleEndian.Uint32(b[4:8])
	return ix.KeyFromInt(int32(lo &^ hi))
}

func (ix *Index) checkKey(key int32) {
	if key < 0 || int(key) >= len(ix.table) {
		panic("hashindex: key out of range")
	}
}

// Add records value under key. A value already present for the key is
// not inserted again; the chain never holds the same value twice.
func (ix *Index) Add(key, value int32) AddResult {
	ix.checkKey(key)
	if value < 0 {
		panic("hashindex: value must be non-negative")
	}

	if ix.table[key] == Unused || ix.table[key] == Deleted {
		ix.table[key] = value
		return Inserted
	}

	if ix.table[key] == value {
		return Duplicate
	}

	// Walk the chain checking for the value, remembering the first
	// reusable tombstone and finding the trailing node.
	reuse := nilNode
	cur := key
	for {
		n := ix.nodes[cur]
		if n.value == value {
			return Duplicate
		}
		if n.value == Deleted && reuse == nilNode {
			reuse = cur
		}
		if n.next == nilNode {
			break
		}
		cur = n.next
	}

	if reuse != nilNode {
		ix.nodes[reuse].value = value
		ix.tombs--
		return Collided
	}

	// cur is the trailing always-unused node. Fill it and materialize
	// a fresh trailing node.
	ix.nodes[cur].value = value
	ix.nodes = append(ix.nodes, node{value: Unused, next: nilNode})
	ix.nodes[cur].next = int32(len(ix.nodes) - 1)
	return Collided
}

// RemoveFirst tombstones the table slot itself. Chained entries are
// untouched; removing one requires iterating to it and calling
// RemoveCurrent.
func (ix *Index) RemoveFirst(key int32) {
	ix.checkKey(key)
	ix.table[key] = Deleted
}

// PeekFirst returns the table slot's value without starting an
// iteration. Unused means the slot and its chain are empty; Deleted
// means the slot is tombstoned but chained entries may remain.
func (ix *Index) PeekFirst(key int32) int32 {
	ix.checkKey(key)
	return ix.table[key]
}

// First begins iterating the values sharing key's slot and returns the
// head value. The sequence is finite and non-restartable: call Next
// until it yields Unused. Deleted values yielded along the way must be
// skipped by the caller.
func (ix *Index) First(key int32) (Iter, int32) {
	ix.checkKey(key)
	return Iter{ix: ix, current: key, prev: nilNode}, ix.table[key]
}

// Iter walks one slot's chain. The zero value is not valid; obtain an
// Iter from First.
type Iter struct {
	ix      *Index
	current int32 // next node to consider
	prev    int32 // most recently yielded node
}

// Next yields the next chained value, or Unused when the chain is
// exhausted. Chain-node tombstones are passed over; the trailing node
// always terminates the walk.
func (it *Iter) Next() int32 {
	if it.ix == nil {
		panic("hashindex: Next before First")
	}

	for it.current != nilNode && it.ix.nodes[it.current].value == Deleted {
		it.current = it.ix.nodes[it.current].next
	}
	if it.current == nilNode {
		return Unused
	}

	it.prev = it.current
	it.current = it.ix.nodes[it.current].next
	return it.ix.nodes[it.prev].value
}

// RemoveCurrent tombstones the most recently yielded node without
// advancing the iterator or altering chain structure. The node is
// reclaimed by a later Add on the same slot. Calling RemoveCurrent
// before Next has yielded a node is a contract violation.
func (it *Iter) RemoveCurrent() {
	if it.ix == nil || it.prev == nilNode {
		panic("hashindex: RemoveCurrent before Next")
	}
	if it.ix.nodes[it.prev].value >= 0 {
		it.ix.tombs++
	}
	it.ix.nodes[it.prev].value = Deleted
}

// Stats returns current occupancy counters.
func (ix *Index) Stats() Stats {
	occupied := 0
	for _, v := range ix.table {
		if v >= 0 {
			occupied++
		}
	}
	return Stats{
		TableSize:     len(ix.table),
		OccupiedSlots: occupied,
		ChainNodes:    len(ix.nodes) - len(ix.table),
		Tombstones:    ix.tombs,
	}
}

// Free releases the table and the whole node arena. Safe to call on an
// already-freed index.
func (ix *Index) Free() {
	ix.table = nil
	ix.nodes = nil
	ix.mask = 0
	ix.tombs = 0
}
