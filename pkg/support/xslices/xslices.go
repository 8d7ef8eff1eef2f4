// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"flag"
	"fmt"
	"strings"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Flag creates a flag for []T with the given name, description and default value, registered in the
// default flag.CommandLine. It takes as input a parser for an individual T value.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	return FlagSet(flag.CommandLine, name, defaultValue, usage, parserFn)
}

// FlagSet is like Flag, but registers the flag in the given flag.FlagSet.
func FlagSet[T any](fs *flag.FlagSet, name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &genericSliceFlagImpl[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	fs.Var(f, name, usage)
	return &f.parsedSlice
}

// genericSliceFlagImpl implements flag.Value for a generic type.
type genericSliceFlagImpl[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

func (f *genericSliceFlagImpl[T]) String() string {
	if f == nil || len(f.parsedSlice) == 0 {
		return ""
	}
	return strings.Join(Map(f.parsedSlice, func(e T) string { return fmt.Sprint(e) }), ",")
}

func (f *genericSliceFlagImpl[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsedSlice = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	parsed := make([]T, len(parts))
	for ii, part := range parts {
		var err error
		parsed[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return err
		}
	}
	f.parsedSlice = parsed
	return nil
}
