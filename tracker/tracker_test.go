package tracker

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dictgo/alloclog"
	"github.com/hupe1980/dictgo/testutil"
)

func TestStoreTrackLookupRelease(t *testing.T) {
	s := New(4096)
	defer s.Free()

	idx := s.Track(0x1000, 64, 0xabcd)
	require.GreaterOrEqual(t, idx, 0)

	rec, ok := s.Lookup(0x1000)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x1000), rec.Ptr)
	assert.Equal(t, uint64(64), rec.Size)
	assert.Equal(t, uint32(0xabcd), rec.StackHash)

	assert.Equal(t, uint64(1), s.Live())
	assert.Equal(t, uint64(64), s.LiveBytes())

	assert.True(t, s.Release(0x1000))
	assert.False(t, s.Release(0x1000))

	_, ok = s.Lookup(0x1000)
	assert.False(t, ok)
	assert.Zero(t, s.Live())
	assert.Zero(t, s.LiveBytes())
}

func TestStoreDuplicateTrackUpdatesInPlace(t *testing.T) {
	s := New(64)
	defer s.Free()

	first := s.Track(0x2000, 32, 1)
	second := s.Track(0x2000, 128, 2)

	assert.Equal(t, first, second)
	assert.Equal(t, uint64(1), s.Live())
	assert.Equal(t, uint64(128), s.LiveBytes())

	rec, ok := s.Lookup(0x2000)
	require.True(t, ok)
	assert.Equal(t, uint32(2), rec.StackHash)
}

// An undersized table forces pointer-key collisions; every tracked
// address must still resolve to its own record.
func TestStoreCollidingPointers(t *testing.T) {
	s := New(4)
	defer s.Free()

	base := uintptr(0x7f0000000000)
	const num = 64

	for i := uintptr(0); i < num; i++ {
		s.Track(base+i*16, uint64(i+1), uint32(i))
	}

	assert.Equal(t, uint64(num), s.Live())

	for i := uintptr(0); i < num; i++ {
		rec, ok := s.Lookup(base + i*16)
		require.True(t, ok, "pointer %d lost", i)
		assert.Equal(t, uint64(i+1), rec.Size)
	}

	// Release half, the rest must survive.
	for i := uintptr(0); i < num; i += 2 {
		assert.True(t, s.Release(base+i*16))
	}
	assert.Equal(t, uint64(num/2), s.Live())
	for i := uintptr(1); i < num; i += 2 {
		_, ok := s.Lookup(base + i*16)
		assert.True(t, ok, "surviving pointer %d lost", i)
	}
}

// Seeded random addresses against an undersized table: heavy chain
// collisions with no spatial pattern, released in shuffled order.
func TestStoreRandomizedPointers(t *testing.T) {
	rng := testutil.NewRNG(7)
	ptrs := rng.Pointers(500, 16)

	s := New(64)
	defer s.Free()

	for i, p := range ptrs {
		require.GreaterOrEqual(t, s.Track(p, uint64(i+1), uint32(i)), 0)
	}
	require.Equal(t, uint64(len(ptrs)), s.Live())

	for i, p := range ptrs {
		rec, ok := s.Lookup(p)
		require.True(t, ok, "pointer %#x lost", p)
		assert.Equal(t, uint64(i+1), rec.Size)
	}

	order := make([]int, len(ptrs))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	released := map[int]bool{}
	for _, i := range order[:len(order)/2] {
		require.True(t, s.Release(ptrs[i]), "pointer %#x not releasable", ptrs[i])
		released[i] = true
	}
	require.Equal(t, uint64(len(ptrs)/2), s.Live())

	for i, p := range ptrs {
		_, ok := s.Lookup(p)
		assert.Equal(t, !released[i], ok, "pointer %#x in wrong state", p)
	}
}

func TestStoreSlotRecycling(t *testing.T) {
	s := New(64)
	defer s.Free()

	idx := s.Track(0x3000, 8, 0)
	require.True(t, s.Release(0x3000))

	// The freed record slot is reused for the next allocation.
	again := s.Track(0x4000, 8, 0)
	assert.Equal(t, idx, again)
}

func TestStoreSnapshot(t *testing.T) {
	s := New(64)
	defer s.Free()

	s.Track(0x1000, 1, 0)
	s.Track(0x2000, 2, 0)
	s.Track(0x3000, 3, 0)
	s.Release(0x2000)

	snap := s.Snapshot()
	require.Len(t, snap, 2)

	var total uint64
	for _, rec := range snap {
		total += rec.Size
	}
	assert.Equal(t, uint64(4), total)
	assert.Equal(t, s.LiveBytes(), total)
}

func TestStoreGuard(t *testing.T) {
	s := New(64)
	defer s.Free()

	s.Track(0x1000, 8, 0)

	done := s.Guard()
	assert.True(t, s.Guarded())

	assert.Equal(t, -1, s.Track(0x2000, 8, 0))
	assert.False(t, s.Release(0x1000))

	// Guards nest.
	inner := s.Guard()
	inner()
	assert.True(t, s.Guarded())

	done()
	assert.False(t, s.Guarded())
	assert.True(t, s.Release(0x1000))
}

func TestStoreZeroPointerIgnored(t *testing.T) {
	s := New(64)
	defer s.Free()

	assert.Equal(t, -1, s.Track(0, 8, 0))
	assert.False(t, s.Release(0))
	_, ok := s.Lookup(0)
	assert.False(t, ok)
}

func TestStoreEventLog(t *testing.T) {
	var buf bytes.Buffer
	w, err := alloclog.New(&buf, func(o *alloclog.Options) {
		o.IncludeStack = false
	})
	require.NoError(t, err)

	s := New(64, WithLog(w))
	defer s.Free()

	s.Track(0x1000, 128, 0xfeed)
	s.Release(0x1000)
	require.NoError(t, w.Close())

	entries, err := alloclog.ReadAll(&buf, alloclog.CompressionNone)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "alloc", entries[0].Call)
	assert.Equal(t, int64(128), entries[0].Bytes)
	assert.Equal(t, uint32(0xfeed), entries[0].HashID)
	assert.Equal(t, "free", entries[1].Call)
	assert.Equal(t, uint64(0x1000), entries[1].Ptr)
}

// The store performs no internal locking; one exclusive lock around
// every call is the documented way to share it. This must be
// sufficient under parallel load.
func TestStoreExternallySerialized(t *testing.T) {
	s := New(1024)
	defer s.Free()

	var mu sync.Mutex
	var g errgroup.Group

	const workers = 8
	const perWorker = 200

	for w := 0; w < workers; w++ {
		base := uintptr(0x100000 * (w + 1))
		g.Go(func() error {
			for i := uintptr(0); i < perWorker; i++ {
				ptr := base + i*32

				mu.Lock()
				s.Track(ptr, 16, 0)
				mu.Unlock()

				if i%2 == 0 {
					mu.Lock()
					s.Release(ptr)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, uint64(workers*perWorker/2), s.Live())
	assert.Equal(t, uint64(workers*perWorker/2*16), s.LiveBytes())
}

func TestStoreFreeIdempotent(t *testing.T) {
	s := New(16)
	s.Track(0x1000, 8, 0)
	s.Free()
	s.Free() // must not fault

	var nilStore *Store
	nilStore.Free() // must not fault
}
