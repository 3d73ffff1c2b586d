// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package install

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"go.confkit.dev/confkit/internal/fileutil"
)

// linkPath returns where a package links into the project, verifying the
// path cannot escape the dependency directory.
func (i *Installer) linkPath(name string) (string, error) {
	depsRoot := filepath.Join(i.projectDir, i.depsDir)
	linkPath := filepath.Join(depsRoot, filepath.FromSlash(name))

	rel, err := filepath.Rel(depsRoot, linkPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.WithStack(&fileutil.PathEscapeError{Path: name, Root: depsRoot})
	}
	return linkPath, nil
}

// link points the project's dependency directory at the extracted store
// path. Symlinks are preferred; platforms that restrict symlink creation
// get a recursive copy instead.
func (i *Installer) link(name, storePath string) error {
	linkPath, err := i.linkPath(name)
	if err != nil {
		return err
	}
	if err := fileutil.EnsureDir(filepath.Dir(linkPath)); err != nil {
		return err
	}
	if err := os.RemoveAll(linkPath); err != nil {
		return errors.WithStack(err)
	}

	if err := os.Symlink(storePath, linkPath); err != nil {
		if err := fileutil.CopyDir(storePath, linkPath); err != nil {
			return errors.Wrapf(err, "linking %q into project", name)
		}
	}
	return nil
}
