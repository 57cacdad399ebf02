// Package tracker maintains an addressable store of live allocation
// records keyed by pointer.
//
// The store resolves an address to a record index through a chained
// hash index: the pointer's bit pattern is swizzled into a table key,
// colliding addresses share a chain, and the record itself settles
// which chain entry matches. Releasing an address tombstones its chain
// entry and recycles the record slot.
//
// A Store is not safe for concurrent use. Callers observing a
// multi-threaded allocator must serialize Track/Release externally;
// one exclusive lock per Store suffices since no operation blocks or
// suspends.
package tracker

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/dictgo/alloclog"
	"github.com/hupe1980/dictgo/hashindex"
)

// Record describes one live allocation.
type Record struct {
	Ptr       uintptr
	Size      uint64
	StackHash uint32
	Seq       uint64 // monotonic event ordinal, useful for age ordering
}

// Store is a pointer-keyed allocation record store.
type Store struct {
	index   *hashindex.Index
	records []Record
	live    *roaring.Bitmap // record indices currently holding a live allocation
	free    []int32         // recycled record indices
	seq     uint64
	bytes   uint64
	guards  int
	log     *alloclog.Writer
}

// Option configures a Store.
type Option func(*Store)

// WithLog attaches an event log; every Track and Release emits one
// record to it. The Store does not own the writer and never closes it.
func WithLog(w *alloclog.Writer) Option {
	return func(s *Store) {
		s.log = w
	}
}

// New creates a Store. capacityHint sizes the hash table (rounded up
// to a power of two, fixed for the Store's lifetime) and should
// approximate the expected number of simultaneously live allocations:
// the record storage grows past it freely, the table does not.
func New(capacityHint int, opts ...Option) *Store {
	if capacityHint < 2 {
		capacityHint = 2
	}

	s := &Store{
		index:   hashindex.New(capacityHint),
		records: make([]Record, 0, capacityHint),
		live:    roaring.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Track records an allocation at ptr and returns its record index.
// Tracking an already-tracked pointer updates the record in place.
// Returns -1 when ptr is zero or the store is guarded.
func (s *Store) Track(ptr uintptr, size uint64, stackHash uint32) int {
	if s.guards > 0 || ptr == 0 {
		return -1
	}

	s.seq++

	if slot, ok := s.find(ptr); ok {
		s.bytes += size - s.records[slot].Size
		s.records[slot] = Record{Ptr: ptr, Size: size, StackHash: stackHash, Seq: s.seq}
		s.emitAlloc(ptr, size, stackHash)
		return int(slot)
	}

	var slot int32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.records = append(s.records, Record{})
		slot = int32(len(s.records) - 1)
	}

	s.records[slot] = Record{Ptr: ptr, Size: size, StackHash: stackHash, Seq: s.seq}
	s.index.Add(s.index.KeyFromPointer(ptr), slot)
	s.live.Add(uint32(slot))
	s.bytes += size

	s.emitAlloc(ptr, size, stackHash)
	return int(slot)
}

// Lookup resolves ptr to its live record.
func (s *Store) Lookup(ptr uintptr) (Record, bool) {
	if ptr == 0 {
		return Record{}, false
	}
	slot, ok := s.find(ptr)
	if !ok {
		return Record{}, false
	}
	return s.records[slot], true
}

// Release removes the record for ptr, tombstoning its index entry and
// recycling the record slot. Reports whether ptr was tracked. A
// guarded store releases nothing.
func (s *Store) Release(ptr uintptr) bool {
	if s.guards > 0 || ptr == 0 {
		return false
	}

	key := s.index.KeyFromPointer(ptr)

	slot := int32(-1)
	if v := s.index.PeekFirst(key); v >= 0 && s.records[v].Ptr == ptr {
		s.index.RemoveFirst(key)
		slot = v
	} else {
		it, _ := s.index.First(key)
		for v := it.Next(); v != hashindex.Unused; v = it.Next() {
			if v >= 0 && s.records[v].Ptr == ptr {
				it.RemoveCurrent()
				slot = v
				break
			}
		}
	}
	if slot < 0 {
		return false
	}

	s.bytes -= s.records[slot].Size
	s.records[slot] = Record{}
	s.live.Remove(uint32(slot))
	s.free = append(s.free, slot)

	if s.log != nil {
		_ = s.log.LogEntry(alloclog.Entry{Call: "free", Ptr: uint64(ptr)})
	}
	return true
}

// Guard suppresses Track and Release until the returned release
// function runs. Guards nest. Use it around work that would otherwise
// re-enter the store through an instrumented allocator:
//
//	done := s.Guard()
//	defer done()
//
// Call the release function exactly once.
func (s *Store) Guard() func() {
	s.guards++
	return func() { s.guards-- }
}

// Guarded reports whether the store currently suppresses tracking.
func (s *Store) Guarded() bool { return s.guards > 0 }

// Live returns the number of live allocation records.
func (s *Store) Live() uint64 { return s.live.GetCardinality() }

// LiveBytes returns the total size of live allocations.
func (s *Store) LiveBytes() uint64 { return s.bytes }

// Snapshot returns the live records in slot order. The slice is the
// caller's to keep.
func (s *Store) Snapshot() []Record {
	out := make([]Record, 0, s.live.GetCardinality())
	it := s.live.Iterator()
	for it.HasNext() {
		out = append(out, s.records[it.Next()])
	}
	return out
}

// IndexStats exposes hash index occupancy for observing chain pressure
// against the fixed table.
func (s *Store) IndexStats() hashindex.Stats { return s.index.Stats() }

// Free releases the record storage and the hash index. Safe to call
// twice.
func (s *Store) Free() {
	if s == nil {
		return
	}
	s.records = nil
	s.free = nil
	s.bytes = 0
	if s.live != nil {
		s.live.Clear()
	}
	if s.index != nil {
		s.index.Free()
	}
}

func (s *Store) find(ptr uintptr) (int32, bool) {
	key := s.index.KeyFromPointer(ptr)
	it, v := s.index.First(key)
	for ; v != hashindex.Unused; v = it.Next() {
		if v == hashindex.Deleted {
			continue
		}
		if s.records[v].Ptr == ptr {
			return v, true
		}
	}
	return -1, false
}

func (s *Store) emitAlloc(ptr uintptr, size uint64, stackHash uint32) {
	if s.log == nil {
		return
	}
	_ = s.log.LogEntry(alloclog.Entry{
		Call:   "alloc",
		Bytes:  int64(size),
		Ptr:    uint64(ptr),
		HashID: stackHash,
	})
}
