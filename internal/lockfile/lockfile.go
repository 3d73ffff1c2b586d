// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package lockfile reads and writes confkit.lock, the manifest that pins
// exact resolved versions, artifact URLs and integrity hashes for
// reproducible installs.
package lockfile

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.confkit.dev/confkit/internal/build"
	"go.confkit.dev/confkit/internal/cachehash"
	"go.confkit.dev/confkit/internal/fileutil"
)

const (
	FileName    = "confkit.lock"
	FileVersion = 1

	timestampFormat = "2006-01-02T15:04:05.000Z"
)

// timeNow is swapped out by tests that assert byte-identical output.
var timeNow = time.Now

// Lightly inspired by package-lock.json.
type File struct {
	FormatVersion int                 `toml:"version"`
	Packages      map[string]*Package `toml:"packages,omitempty"`
	Metadata      Metadata            `toml:"metadata"`
}

// Package is one pinned entry. Dependencies maps package name to the range
// this version declares against it.
type Package struct {
	Version      string            `toml:"version"`
	Resolved     string            `toml:"resolved"`
	Integrity    string            `toml:"integrity"`
	Dependencies map[string]string `toml:"dependencies,inline,omitempty"`
	Yanked       bool              `toml:"yanked,omitempty"`
	YankedReason string            `toml:"yanked_reason,omitempty"`
}

type Metadata struct {
	GeneratedAt string `toml:"generated_at"`
	CLIVersion  string `toml:"cli_version"`
}

func New() *File {
	return &File{
		FormatVersion: FileVersion,
		Packages:      map[string]*Package{},
	}
}

func FilePath(dir string) string {
	return filepath.Join(dir, FileName)
}

// Read loads the lockfile from dir. A missing or structurally invalid file
// degrades to nil so that callers proceed as if no lockfile exists; corrupt
// files are reported through Validate, never from here.
func Read(dir string) *File {
	data, err := os.ReadFile(FilePath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		slog.Error("lockfile unreadable, ignoring it", "path", FilePath(dir), "err", err)
		return nil
	}

	f := New()
	if err := toml.Unmarshal(data, f); err != nil {
		slog.Error("lockfile malformed, ignoring it", "path", FilePath(dir), "err", err)
		return nil
	}
	return f
}

// Write serializes f into dir. Package keys and dependency keys come out
// sorted, so output for a given package set is byte-identical across runs.
// The write is skipped entirely when the pinned package set on disk already
// matches; metadata alone never dirties the file.
func Write(f *File, dir string) error {
	pending := f.Clone()
	pending.FormatVersion = FileVersion

	if existing := Read(dir); existing != nil && contentHash(existing) == contentHash(pending) {
		return nil
	}

	pending.Metadata = Metadata{
		GeneratedAt: timeNow().UTC().Format(timestampFormat),
		CLIVersion:  build.Version,
	}
	data, err := toml.Marshal(pending)
	if err != nil {
		return errors.WithStack(err)
	}
	return fileutil.WriteAtomic(FilePath(dir), data, 0o644)
}

// Merge overlays updates onto existing without mutating either. A nil
// existing merges onto an empty lockfile.
func Merge(existing *File, updates map[string]*Package) *File {
	merged := existing.Clone()
	for name, entry := range updates {
		merged.Packages[name] = entry.clone()
	}
	return merged
}

// Remove returns a copy of existing without the named entries.
func Remove(existing *File, names ...string) *File {
	out := existing.Clone()
	out.Packages = lo.OmitByKeys(out.Packages, names)
	return out
}

// Clone deep-copies the lockfile. Clone of nil is an empty lockfile.
func (f *File) Clone() *File {
	out := New()
	if f == nil {
		return out
	}
	out.FormatVersion = f.FormatVersion
	out.Metadata = f.Metadata
	for name, entry := range f.Packages {
		out.Packages[name] = entry.clone()
	}
	return out
}

func (p *Package) clone() *Package {
	if p == nil {
		return nil
	}
	out := *p
	out.Dependencies = lo.Assign(map[string]string{}, p.Dependencies)
	if len(out.Dependencies) == 0 {
		out.Dependencies = nil
	}
	return &out
}

// contentHash fingerprints everything except the metadata stamp.
func contentHash(f *File) string {
	c := f.Clone()
	c.Metadata = Metadata{}
	data, err := toml.Marshal(c)
	if err != nil {
		return ""
	}
	return cachehash.Bytes(data)
}
