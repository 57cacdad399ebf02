package dictgo

import (
	"github.com/hupe1980/dictgo/hashindex"
	"github.com/hupe1980/dictgo/variant"
)

// KeyBytes is the per-slot key buffer width, including the terminator
// position: KeyBytes-1 bytes of a key are significant and longer keys
// are silently truncated.
const KeyBytes = 9

type keyBuf [KeyBytes]byte

func (k *keyBuf) live() bool { return k[0] != 0 }

func (k *keyBuf) str() string {
	n := 0
	for n < KeyBytes && k[n] != 0 {
		n++
	}
	return string(k[:n])
}

// Dict is a string-keyed dictionary of variants.
//
// Keys and values live in parallel arrays; an embedded hash index maps
// key hashes to slot indices. The arrays grow on demand, but the hash
// table does not: its size is fixed at construction, so the load factor
// worsens as the dictionary outgrows it and lookups degrade toward
// chain walks. Size hashTableSize for the expected number of keys.
//
// Keys compare case-folded (7-bit ASCII) unless WithCaseSensitive is
// given. Dict is not safe for concurrent use; callers must serialize
// all operations.
type Dict struct {
	keys   []keyBuf
	values []variant.Variant
	pairs  int // high-water slot count; freed slots below this are reusable
	live   int // slots currently holding a key
	index  *hashindex.Index
	opts   options
}

// New creates a Dict with capacity key/value slots and a hash table of
// hashTableSize slots (rounded up to a power of two). capacity is a
// starting size, grown on demand; hashTableSize is fixed for the
// dictionary's lifetime and is a performance falloff range, not a
// limit.
func New(capacity, hashTableSize int, optFns ...Option) (*Dict, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if hashTableSize < 2 {
		return nil, ErrInvalidHashTableSize
	}

	o := options{logger: NoopLogger()}
	for _, fn := range optFns {
		fn(&o)
	}

	return &Dict{
		keys:   make([]keyBuf, capacity),
		values: make([]variant.Variant, capacity),
		index:  hashindex.New(hashTableSize),
		opts:   o,
	}, nil
}

// Len returns the number of live keys.
func (d *Dict) Len() int { return d.live }

// Capacity returns the current slot capacity of the key/value arrays.
func (d *Dict) Capacity() int { return len(d.keys) }

// IndexStats exposes the embedded hash index occupancy, so callers can
// observe chain pressure against the fixed table.
func (d *Dict) IndexStats() hashindex.Stats { return d.index.Stats() }

// SetString stores value under key as an owned string.
func (d *Dict) SetString(key, value string) error {
	return d.set(key, func(v *variant.Variant) { v.SetString(value) })
}

// SetBool stores a boolean under key.
func (d *Dict) SetBool(key string, value bool) error {
	return d.set(key, func(v *variant.Variant) { v.SetBool(value) })
}

// SetSint32 stores a signed 32-bit integer under key.
func (d *Dict) SetSint32(key string, value int32) error {
	return d.set(key, func(v *variant.Variant) { v.SetSint32(value) })
}

// SetUint32 stores an unsigned 32-bit integer under key.
func (d *Dict) SetUint32(key string, value uint32) error {
	return d.set(key, func(v *variant.Variant) { v.SetUint32(value) })
}

// SetFloat stores a 32-bit float under key.
func (d *Dict) SetFloat(key string, value float32) error {
	return d.set(key, func(v *variant.Variant) { v.SetFloat(value) })
}

// SetVec2 stores a 2-vector under key.
func (d *Dict) SetVec2(key string, value [2]float32) error {
	return d.set(key, func(v *variant.Variant) { v.SetVec2(value) })
}

// SetVec3 stores a 3-vector under key.
func (d *Dict) SetVec3(key string, value [3]float32) error {
	return d.set(key, func(v *variant.Variant) { v.SetVec3(value) })
}

// GetString returns the string stored under key, or fallback if the key
// is absent or holds a non-string value.
func (d *Dict) GetString(key, fallback string) string {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.String {
		return v.GetString()
	}
	return fallback
}

// GetBool returns the boolean stored under key, or fallback.
func (d *Dict) GetBool(key string, fallback bool) bool {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.Bool {
		return v.GetBool()
	}
	return fallback
}

// GetSint32 returns the signed integer stored under key, or fallback.
func (d *Dict) GetSint32(key string, fallback int32) int32 {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.Sint32 {
		return v.GetSint32()
	}
	return fallback
}

// GetUint32 returns the unsigned integer stored under key, or fallback.
func (d *Dict) GetUint32(key string, fallback uint32) uint32 {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.Uint32 {
		return v.GetUint32()
	}
	return fallback
}

// GetFloat returns the float stored under key, or fallback.
func (d *Dict) GetFloat(key string, fallback float32) float32 {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.Float {
		return v.GetFloat()
	}
	return fallback
}

// GetVec2 returns the 2-vector stored under key, or fallback.
func (d *Dict) GetVec2(key string, fallback [2]float32) [2]float32 {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.Vec2 {
		return v.GetVec2()
	}
	return fallback
}

// GetVec3 returns the 3-vector stored under key, or fallback.
func (d *Dict) GetVec3(key string, fallback [3]float32) [3]float32 {
	if v, ok := d.lookup(key); ok && v.Kind() == variant.Vec3 {
		return v.GetVec3()
	}
	return fallback
}

// Get returns the variant stored under key. The returned pointer is
// invalidated by any subsequent mutating call on the Dict.
func (d *Dict) Get(key string) (*variant.Variant, bool) {
	return d.lookup(key)
}

// Delete removes key, clearing its slot for reuse and tombstoning its
// index entry. Storage is never compacted. Reports whether the key was
// present.
func (d *Dict) Delete(key string) bool {
	if key == "" {
		panic("dictgo: empty key")
	}
	norm := d.normalize(key)
	h := d.index.KeyFromString(norm)

	slot := d.findSlot(norm, h)
	if slot < 0 {
		return false
	}

	if d.index.PeekFirst(h) == int32(slot) {
		d.index.RemoveFirst(h)
	} else {
		it, _ := d.index.First(h)
		for v := it.Next(); v != hashindex.Unused; v = it.Next() {
			if v == int32(slot) {
				it.RemoveCurrent()
				break
			}
		}
	}

	d.keys[slot] = keyBuf{}
	d.values[slot].Clear()
	d.live--
	d.opts.logger.LogDelete(key, slot)
	return true
}

// Free releases the key/value storage and the embedded hash index. The
// Dict returns to an empty, unusable state. Safe to call twice.
func (d *Dict) Free() {
	if d == nil {
		return
	}
	for i := range d.values {
		d.values[i].Clear()
	}
	d.keys = nil
	d.values = nil
	d.pairs = 0
	d.live = 0
	if d.index != nil {
		d.index.Free()
	}
}

// normalize truncates key to its significant bytes and folds case
// unless the Dict is case sensitive. The result is what gets hashed
// and compared, keeping the uniqueness invariant aligned with the
// comparison mode.
func (d *Dict) normalize(key string) string {
	if len(key) > KeyBytes-1 {
		key = key[:KeyBytes-1]
	}
	if d.opts.caseSensitive {
		return key
	}
	b := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		b[i] = foldByte(key[i])
	}
	return string(b)
}

func foldByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func (d *Dict) keyMatches(slot int, norm string) bool {
	kb := &d.keys[slot]
	if !kb.live() {
		return false
	}
	i := 0
	for ; i < len(norm); i++ {
		c := kb[i]
		if c == 0 {
			return false
		}
		if !d.opts.caseSensitive {
			c = foldByte(c)
		}
		if c != norm[i] {
			return false
		}
	}
	return i == KeyBytes-1 || kb[i] == 0
}

// findSlot walks the hash chain for norm's hash and returns the live
// slot whose key matches, or -1.
func (d *Dict) findSlot(norm string, h int32) int {
	it, v := d.index.First(h)
	for ; v != hashindex.Unused; v = it.Next() {
		if v == hashindex.Deleted {
			continue
		}
		if d.keyMatches(int(v), norm) {
			return int(v)
		}
	}
	return -1
}

// grow extends the parallel arrays by one key-buffer-width worth of
// slots, preserving contents. The hash table stays fixed.
func (d *Dict) grow() {
	oldCap := len(d.keys)
	newCap := oldCap + KeyBytes

	keys := make([]keyBuf, newCap)
	copy(keys, d.keys)
	values := make([]variant.Variant, newCap)
	copy(values, d.values)

	d.keys = keys
	d.values = values
	d.opts.logger.LogGrow(oldCap, newCap)
}

// claimSlot returns the first reusable empty slot below the high-water
// mark, or appends a new one (growing if the arrays are full).
func (d *Dict) claimSlot() int {
	for i := 0; i < d.pairs; i++ {
		if !d.keys[i].live() {
			return i
		}
	}
	if d.pairs == len(d.keys) {
		d.grow()
	}
	d.pairs++
	return d.pairs - 1
}

func (d *Dict) set(key string, assign func(*variant.Variant)) error {
	if key == "" {
		panic("dictgo: empty key")
	}
	norm := d.normalize(key)
	h := d.index.KeyFromString(norm)

	slot := d.findSlot(norm, h)
	overwrite := slot >= 0
	if !overwrite {
		slot = d.claimSlot()
		d.live++
	}

	var kb keyBuf
	copy(kb[:KeyBytes-1], key)
	d.keys[slot] = kb
	assign(&d.values[slot])

	if !overwrite {
		d.index.Add(h, int32(slot))
	}
	d.opts.logger.LogSet(key, slot, overwrite)
	return nil
}

func (d *Dict) lookup(key string) (*variant.Variant, bool) {
	if key == "" {
		panic("dictgo: empty key")
	}
	norm := d.normalize(key)
	h := d.index.KeyFromString(norm)

	slot := d.findSlot(norm, h)
	if slot < 0 {
		return nil, false
	}
	return &d.values[slot], true
}
