// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implements a generic set as a `map[T]struct{}`, with a few helpers to keep traversal
// over it deterministic.
package sets

import "slices"

// Set of keys of type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set. The optional size reserves space for that many elements.
func Make[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// MakeWith returns a Set with the given elements.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has returns whether key is in the set.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into the set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Add inserts key and returns true if it was not yet in the set.
func (s Set[T]) Add(key T) bool {
	if s.Has(key) {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Remove keys from the set.
func (s Set[T]) Remove(keys ...T) {
	for _, key := range keys {
		delete(s, key)
	}
}

// Sub returns a new set with the elements of s that are not in s2.
func (s Set[T]) Sub(s2 Set[T]) Set[T] {
	sub := Make[T]()
	for k := range s {
		if !s2.Has(k) {
			sub.Insert(k)
		}
	}
	return sub
}

// Equal returns whether s and s2 have the same elements.
func (s Set[T]) Equal(s2 Set[T]) bool {
	if len(s) != len(s2) {
		return false
	}
	for k := range s {
		if !s2.Has(k) {
			return false
		}
	}
	return true
}

// Sorted returns the elements of the set ordered by cmp.
func (s Set[T]) Sorted(cmp func(a, b T) int) []T {
	elements := make([]T, 0, len(s))
	for k := range s {
		elements = append(elements, k)
	}
	slices.SortFunc(elements, cmp)
	return elements
}
