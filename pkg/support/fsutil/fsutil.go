// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os"
	"os/user"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user (e.g: `~unknown/...`).
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(dir[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return path.Join(usr.HomeDir, rest), nil
}

// CreateParentDir creates the directory where filePath will be written, if it doesn't exist yet.
func CreateParentDir(filePath string) error {
	dir := path.Dir(filePath)
	exists, err := FileExists(dir)
	if err != nil || exists {
		return err
	}
	return errors.Wrapf(os.MkdirAll(dir, 0755), "creating directory %q", dir)
}
