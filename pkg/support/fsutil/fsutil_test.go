// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr := must.M1(user.Current())
	assert.Equal(t, "/tmp/x", must.M1(ReplaceTildeInDir("/tmp/x")))
	assert.Equal(t, "", must.M1(ReplaceTildeInDir("")))
	assert.Equal(t, usr.HomeDir, must.M1(ReplaceTildeInDir("~")))
	assert.Equal(t, path.Join(usr.HomeDir, "plots/loss.svg"), must.M1(ReplaceTildeInDir("~/plots/loss.svg")))
	assert.Equal(t, path.Join(usr.HomeDir, "a"), must.M1(ReplaceTildeInDir("~"+usr.Username+"/a")))
	_, err := ReplaceTildeInDir("~no_such_user_for_sure/a")
	require.Error(t, err)
}

func TestCreateParentDir(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a", "b", "loss.png")
	assert.False(t, must.M1(FileExists(filepath.Dir(filePath))))
	require.NoError(t, CreateParentDir(filePath))
	assert.True(t, must.M1(FileExists(filepath.Dir(filePath))))
	require.NoError(t, CreateParentDir(filePath))
}
