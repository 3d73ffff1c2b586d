// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package cas implements the content-addressable store backing package
// installs. Artifact bytes live in a blob tree keyed by SHA-256 digest;
// extracted packages live in per-(name, version) directories under the
// store tree.
//
// Layout under the root:
//
//	cache/sha256/<first-2-hex>/<rest-hex>   raw artifact bytes
//	store/<flattened-name>/<version>/...    extracted package contents
package cas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"go.confkit.dev/confkit/internal/fileutil"
)

var ErrNotFound = errors.New("blob not found in store")

type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// BlobPath returns where the blob for a hex digest lives, sharded by the
// first two hex characters.
func (s *Store) BlobPath(digest string) string {
	return filepath.Join(s.root, "cache", "sha256", digest[:2], digest[2:])
}

// Put stores data under its SHA-256 digest and returns the hex digest.
// Blobs are immutable: an existing blob is left untouched, and concurrent
// writers racing on the same content are safe because each lands via an
// atomic rename of identical bytes.
func (s *Store) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	path := s.BlobPath(digest)
	if fileutil.IsFile(path) {
		return digest, nil
	}
	if err := fileutil.WriteAtomic(path, data, 0o444); err != nil {
		return "", errors.Wrapf(err, "storing blob %s", digest)
	}
	return digest, nil
}

// Get returns the blob bytes for a hex digest, or ErrNotFound.
func (s *Store) Get(digest string) ([]byte, error) {
	data, err := os.ReadFile(s.BlobPath(digest))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(ErrNotFound, digest)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Verify rehashes the stored blob and reports whether it still matches its
// digest. A missing blob fails verification with ErrNotFound.
func (s *Store) Verify(digest string) (bool, error) {
	data, err := s.Get(digest)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == digest, nil
}

// PackagePath returns the extraction directory for a package version. The
// name is flattened ("@scope/name" becomes "_scope_name") so every package
// occupies exactly one directory level regardless of scoping.
func (s *Store) PackagePath(name, version string) string {
	return filepath.Join(s.root, "store", FlattenName(name), version)
}

// FlattenName turns a package name into a single path segment.
func FlattenName(name string) string {
	name = strings.ReplaceAll(name, "@", "_")
	return strings.ReplaceAll(name, "/", "_")
}

// Extracted reports a successful package extraction.
type Extracted struct {
	Path     string
	Warnings []string
}

// ExtractPackage unpacks archive bytes into the package's store directory.
// Any previous extraction of the same (name, version) is removed first, so
// the directory is always a complete product of a single archive. On any
// failure the partial directory is removed; callers never observe a
// half-extracted package.
func (s *Store) ExtractPackage(ctx context.Context, archive []byte, name, version string) (*Extracted, error) {
	path := s.PackagePath(name, version)
	if err := os.RemoveAll(path); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := fileutil.EnsureDir(path); err != nil {
		return nil, err
	}

	report, err := fileutil.ExtractTarGz(ctx, bytes.NewReader(archive), path)
	if err != nil {
		os.RemoveAll(path)
		return nil, errors.Wrapf(err, "extracting %s@%s", name, version)
	}
	if err := stripExecuteBits(path); err != nil {
		os.RemoveAll(path)
		return nil, err
	}
	return &Extracted{Path: path, Warnings: report.Skipped}, nil
}

// RemovePackage deletes the extracted directory for a package version, and
// the package's directory level if that was its last version.
func (s *Store) RemovePackage(name, version string) error {
	if err := os.RemoveAll(s.PackagePath(name, version)); err != nil {
		return errors.WithStack(err)
	}
	parent := filepath.Join(s.root, "store", FlattenName(name))
	if entries, err := os.ReadDir(parent); err == nil && len(entries) == 0 {
		return errors.WithStack(os.Remove(parent))
	}
	return nil
}

// stripExecuteBits drops the execute permission from every regular file
// under root, whatever permissions the archive claimed. Configuration
// packages have no business shipping executables.
func stripExecuteBits(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return errors.WithStack(err)
		}
		if mode := info.Mode(); mode&0o111 != 0 {
			return errors.WithStack(os.Chmod(path, mode&^0o111))
		}
		return nil
	})
}
