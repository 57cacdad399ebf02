// Package array provides a contiguous, amortized-growth sequence.
//
// An Array owns its backing storage exclusively. Any mutating call may
// reallocate the storage, so callers must not retain references obtained
// from Slice or At across an Append or Reserve.
//
// A nil *Array is a valid empty array for read operations and Free.
package array

import (
	"errors"
	"math"
)

// ErrCapacityOverflow is returned when a growth step would exceed the
// addressable element range.
var ErrCapacityOverflow = errors.New("array: capacity overflow")

// Array is a growable sequence of T. The zero value is an empty array.
type Array[T any] struct {
	elems []T // len(elems) is the capacity
	count int
}

// New creates an Array with storage reserved for at least initialCount
// elements. The array is logically empty.
func New[T any](initialCount int) *Array[T] {
	a := &Array[T]{}
	if initialCount > 0 {
		a.elems = make([]T, initialCount)
	}
	return a
}

// growTarget returns the capacity for a growth step that must fit at
// least incr more elements. The result always exceeds oldCap.
func growTarget(oldCap, incr int) int {
	expanded := int(float64(oldCap) * 1.5)
	minimum := oldCap + incr
	if minimum > expanded {
		return minimum
	}
	return expanded
}

// Reserve grows the storage by at least incr elements, preserving
// existing contents.
func (a *Array[T]) Reserve(incr int) error {
	if incr <= 0 {
		return nil
	}
	oldCap := len(a.elems)
	if oldCap > math.MaxInt-incr {
		return ErrCapacityOverflow
	}
	newCap := growTarget(oldCap, incr)
	elems := make([]T, newCap)
	copy(elems, a.elems)
	a.elems = elems
	return nil
}

// Append writes v after the last element, growing the storage if full.
// On failure the array is unchanged.
func (a *Array[T]) Append(v T) error {
	if a.count == len(a.elems) {
		if err := a.Reserve(1); err != nil {
			return err
		}
	}
	a.elems[a.count] = v
	a.count++
	return nil
}

// Count returns the number of stored elements.
func (a *Array[T]) Count() int {
	if a == nil {
		return 0
	}
	return a.count
}

// Cap returns the element capacity of the backing storage.
func (a *Array[T]) Cap() int {
	if a == nil {
		return 0
	}
	return len(a.elems)
}

// At returns the element at index i.
func (a *Array[T]) At(i int) T {
	if i < 0 || i >= a.count {
		panic("array: index out of range")
	}
	return a.elems[i]
}

// Set overwrites the element at index i.
func (a *Array[T]) Set(i int, v T) {
	if i < 0 || i >= a.count {
		panic("array: index out of range")
	}
	a.elems[i] = v
}

// Last returns the final element. Calling Last on an empty array is a
// contract violation.
func (a *Array[T]) Last() T {
	if a.Count() == 0 {
		panic("array: Last on empty array")
	}
	return a.elems[a.count-1]
}

// End returns the index one past the last element, for iteration
// symmetrical with At.
func (a *Array[T]) End() int {
	return a.Count()
}

// Slice returns a view of the stored elements. The view is invalidated
// by any subsequent mutating call.
func (a *Array[T]) Slice() []T {
	if a == nil {
		return nil
	}
	return a.elems[:a.count]
}

// Free releases the backing storage. The array returns to the canonical
// empty state and remains usable.
func (a *Array[T]) Free() {
	if a == nil {
		return
	}
	a.elems = nil
	a.count = 0
}
