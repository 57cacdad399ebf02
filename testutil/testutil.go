package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// keyAlphabet spans both cases so generated keys exercise folding.
const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"

// Key returns a random key of length n drawn from a mixed-case
// alphabet.
func (r *RNG) Key(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key(n)
}

// Keys returns count random keys of length n, pairwise distinct under
// case folding. n must be at least 4 for the distinctness retry loop
// to terminate at realistic counts.
func (r *RNG) Keys(count, n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	for len(out) < count {
		k := r.key(n)
		folded := foldASCII(k)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (r *RNG) key(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = keyAlphabet[r.rand.Intn(len(keyAlphabet))]
	}
	return string(b)
}

// Pointers returns count pseudo-random, pairwise-distinct, align-byte
// aligned non-zero addresses. align must be a power of two.
func (r *RNG) Pointers(count int, align uintptr) []uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uintptr]struct{}, count)
	out := make([]uintptr, 0, count)
	for len(out) < count {
		p := uintptr(r.rand.Uint64()) &^ (align - 1)
		if p == 0 {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Shuffle pseudo-randomizes the order of elements.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(n, swap)
}

func foldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
