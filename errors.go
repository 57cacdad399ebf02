package dictgo

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is returned when a Dict is created with a
	// non-positive capacity.
	ErrInvalidCapacity = errors.New("capacity must be positive")

	// ErrInvalidHashTableSize is returned when a Dict is created with a
	// hash table of fewer than two slots.
	ErrInvalidHashTableSize = errors.New("hash table size must be at least 2")
)

// ErrKeyTruncated reports that a key exceeds the significant key width.
// Dict operations never return it (truncation is silent by contract);
// it exists for callers that validate keys up front with CheckKey.
type ErrKeyTruncated struct {
	Key string
}

func (e *ErrKeyTruncated) Error() string {
	return fmt.Sprintf("key %q exceeds %d significant bytes", e.Key, KeyBytes-1)
}

// CheckKey reports whether key would be stored exactly as given,
// returning an *ErrKeyTruncated when it is longer than the significant
// width, for callers that prefer failing loudly over silent truncation.
func CheckKey(key string) error {
	if len(key) > KeyBytes-1 {
		return &ErrKeyTruncated{Key: key}
	}
	return nil
}
