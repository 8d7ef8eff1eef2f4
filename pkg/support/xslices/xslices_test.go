// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
}

func TestFlagSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	hidden := FlagSet(fs, "hidden", []int{4}, "hidden layer sizes", strconv.Atoi)
	assert.Equal(t, []int{4}, *hidden)
	require.NoError(t, fs.Parse([]string{"-hidden=8, 3"}))
	assert.Equal(t, []int{8, 3}, *hidden)
	assert.Equal(t, "8,3", fs.Lookup("hidden").Value.String())

	require.Error(t, fs.Parse([]string{"-hidden=8,x"}))
	assert.Equal(t, []int{8, 3}, *hidden)
	require.NoError(t, fs.Parse([]string{"-hidden="}))
	assert.Empty(t, *hidden)
}
