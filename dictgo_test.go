package dictgo

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dictgo/testutil"
	"github.com/hupe1980/dictgo/variant"
)

func TestDictBasic(t *testing.T) {
	d, err := New(128, 32)
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetString("mr.key", "mr.value"))
	assert.Equal(t, "mr.value", d.GetString("mr.key", ""))
	assert.Equal(t, 1, d.Len())

	assert.Equal(t, "fallback", d.GetString("missing", "fallback"))
}

func TestDictValidation(t *testing.T) {
	_, err := New(0, 32)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New(32, 1)
	assert.ErrorIs(t, err, ErrInvalidHashTableSize)
}

// Inserting 64 distinct keys into a 4-slot dictionary with a 4-slot
// hash table forces repeated growth and heavy chain collisions; every
// key must stay independently retrievable.
func TestDictForceOverflow(t *testing.T) {
	d, err := New(4, 4)
	require.NoError(t, err)
	defer d.Free()

	startCap := d.Capacity()

	for i := 0; i < 64; i++ {
		key := fmt.Sprintf("%d", i)
		val := fmt.Sprintf("num %d", i)
		require.NoError(t, d.SetString(key, val))
		require.Equal(t, val, d.GetString(key, ""), "key %s lost immediately", key)
	}

	assert.Greater(t, d.Capacity(), startCap, "expected internal growth")
	assert.Equal(t, 64, d.Len())

	for i := 0; i < 64; i++ {
		key := fmt.Sprintf("%d", i)
		want := fmt.Sprintf("num %d", i)
		assert.Equal(t, want, d.GetString(key, ""), "key %s lost after growth", key)
	}
}

func TestDictOverwriteKeepsLiveCount(t *testing.T) {
	d, err := New(8, 8)
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetString("k", "one"))
	require.NoError(t, d.SetString("k", "two"))

	assert.Equal(t, "two", d.GetString("k", ""))
	assert.Equal(t, 1, d.Len())
}

func TestDictCaseFolding(t *testing.T) {
	d, err := New(8, 8)
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetString("Key", "first"))
	require.NoError(t, d.SetString("KEY", "second"))

	// Case-folded comparison: same key, overwritten in place.
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "second", d.GetString("key", ""))
}

func TestDictCaseSensitive(t *testing.T) {
	d, err := New(8, 8, WithCaseSensitive())
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetString("Key", "upper"))
	require.NoError(t, d.SetString("key", "lower"))

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "upper", d.GetString("Key", ""))
	assert.Equal(t, "lower", d.GetString("key", ""))
}

func TestDictKeyTruncation(t *testing.T) {
	d, err := New(8, 8)
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetString("truncated-very-long-key", "v1"))

	// Keys identical in their significant bytes resolve to one slot.
	assert.Equal(t, "v1", d.GetString("truncate", ""))
	require.NoError(t, d.SetString("truncated-but-different-tail", "v2"))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "v2", d.GetString("truncate", ""))

	assert.Error(t, CheckKey("truncated-very-long-key"))
	assert.NoError(t, CheckKey("short"))
}

func TestDictTypedValues(t *testing.T) {
	d, err := New(16, 16)
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetBool("bool", true))
	require.NoError(t, d.SetSint32("sint", -4096))
	require.NoError(t, d.SetUint32("uint", 0xFF00))
	require.NoError(t, d.SetFloat("float", 1.5))
	require.NoError(t, d.SetVec2("vec2", [2]float32{1, 2}))
	require.NoError(t, d.SetVec3("vec3", [3]float32{1, 2, 3}))

	assert.True(t, d.GetBool("bool", false))
	assert.Equal(t, int32(-4096), d.GetSint32("sint", 0))
	assert.Equal(t, uint32(0xFF00), d.GetUint32("uint", 0))
	assert.Equal(t, float32(1.5), d.GetFloat("float", 0))
	assert.Equal(t, [2]float32{1, 2}, d.GetVec2("vec2", [2]float32{}))
	assert.Equal(t, [3]float32{1, 2, 3}, d.GetVec3("vec3", [3]float32{}))

	// Kind mismatch falls back.
	assert.Equal(t, "fb", d.GetString("bool", "fb"))
	assert.Equal(t, int32(7), d.GetSint32("float", 7))

	v, ok := d.Get("sint")
	require.True(t, ok)
	assert.Equal(t, variant.Sint32, v.Kind())
}

func TestDictDelete(t *testing.T) {
	d, err := New(8, 4)
	require.NoError(t, err)
	defer d.Free()

	require.NoError(t, d.SetString("a", "1"))
	require.NoError(t, d.SetString("b", "2"))
	require.NoError(t, d.SetString("c", "3"))

	assert.True(t, d.Delete("b"))
	assert.False(t, d.Delete("b"))
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "", d.GetString("b", ""))

	// Survivors unaffected.
	assert.Equal(t, "1", d.GetString("a", ""))
	assert.Equal(t, "3", d.GetString("c", ""))

	// The freed slot is reclaimed before the arrays grow.
	capBefore := d.Capacity()
	require.NoError(t, d.SetString("d", "4"))
	assert.Equal(t, capBefore, d.Capacity())
	assert.Equal(t, "4", d.GetString("d", ""))
	assert.Equal(t, 3, d.Len())
}

func TestDictFreeIdempotent(t *testing.T) {
	d, err := New(4, 4)
	require.NoError(t, err)

	require.NoError(t, d.SetString("k", "v"))
	d.Free()
	d.Free() // must not fault

	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, d.Capacity())

	var nilDict *Dict
	nilDict.Free() // must not fault
}

func TestDictEmptyKeyPanics(t *testing.T) {
	d, err := New(4, 4)
	require.NoError(t, err)
	defer d.Free()

	assert.Panics(t, func() { _ = d.SetString("", "v") })
	assert.Panics(t, func() { _ = d.GetString("", "") })
}

// Seeded mixed-case keys, pairwise distinct under folding, driven
// through a full set/lookup/delete cycle.
func TestDictRandomizedRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(42)
	keys := rng.Keys(500, 8)

	d, err := New(64, 256)
	require.NoError(t, err)
	defer d.Free()

	for i, k := range keys {
		require.NoError(t, d.SetString(k, fmt.Sprintf("val-%d", i)))
	}
	require.Equal(t, len(keys), d.Len())

	for i, k := range keys {
		want := fmt.Sprintf("val-%d", i)
		assert.Equal(t, want, d.GetString(k, ""), "key %q lost", k)
		// Folded lookups resolve to the same slot.
		assert.Equal(t, want, d.GetString(strings.ToUpper(k), ""), "key %q lost under folding", k)
	}

	// Delete a random half; survivors must be untouched.
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	deleted := map[int]bool{}
	for _, i := range order[:len(order)/2] {
		require.True(t, d.Delete(keys[i]), "key %q not deletable", keys[i])
		deleted[i] = true
	}
	require.Equal(t, len(keys)/2, d.Len())

	for i, k := range keys {
		if deleted[i] {
			assert.Equal(t, "", d.GetString(k, ""), "deleted key %q still resolves", k)
			continue
		}
		assert.Equal(t, fmt.Sprintf("val-%d", i), d.GetString(k, ""), "survivor %q lost", k)
	}
}

func TestDictIndexStats(t *testing.T) {
	d, err := New(4, 4)
	require.NoError(t, err)
	defer d.Free()

	for i := 0; i < 32; i++ {
		require.NoError(t, d.SetString(fmt.Sprintf("k%d", i), "v"))
	}

	stats := d.IndexStats()
	assert.Equal(t, 4, stats.TableSize)
	// Far more keys than table slots: chains must exist.
	assert.Greater(t, stats.ChainNodes, 0)
}
