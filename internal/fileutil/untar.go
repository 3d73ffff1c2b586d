// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package fileutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

// EntryKind classifies an archive entry. The kind is decided once, when the
// entry's metadata is read, and drives the extraction policy below.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDir
	EntrySymlink
	EntryHardLink
	EntryOther
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDir:
		return "directory"
	case EntrySymlink:
		return "symlink"
	case EntryHardLink:
		return "hard link"
	default:
		return "special file"
	}
}

// PathEscapeError reports a path that would resolve outside its sandbox
// root. Extraction recovers from it per entry; other callers treat it as
// fatal.
type PathEscapeError struct {
	Path string
	Root string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q escapes root %q", e.Path, e.Root)
}

// ErrNoEntriesExtracted is returned when an archive yields nothing: either
// it is empty or every entry was rejected by the extraction policy. Callers
// must treat it as a failed extraction, not an empty success.
var ErrNoEntriesExtracted = errors.New("no extractable entries in archive")

// ExtractReport describes what ExtractTarGz did. Skipped holds one warning
// per rejected entry.
type ExtractReport struct {
	Extracted int
	Skipped   []string
}

// ExtractTarGz unpacks a gzipped tarball into destPath, which must already
// exist. Entries are screened before any byte is written: absolute paths,
// paths with a ".." component, links, and special files are skipped with a
// recorded warning. Every written path is verified to stay under destPath.
// Ownership metadata from the archive is never applied.
func ExtractTarGz(ctx context.Context, archive io.Reader, destPath string) (*ExtractReport, error) {
	if _, err := os.Stat(destPath); err != nil {
		return nil, errors.WithStack(err)
	}

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
		Extraction:  archives.Tar{},
	}

	report := &ExtractReport{}
	handler := func(ctx context.Context, entry archives.FileInfo) error {
		kind := classifyEntry(entry)
		if v := checkEntry(entry.NameInArchive, kind); !v.ok {
			report.Skipped = append(report.Skipped,
				fmt.Sprintf("skipped entry %q: %s", entry.NameInArchive, v.reason))
			return nil
		}

		abs, err := secureJoin(destPath, entry.NameInArchive)
		if err != nil {
			report.Skipped = append(report.Skipped,
				fmt.Sprintf("skipped entry %q: resolves outside extraction root", entry.NameInArchive))
			return nil
		}

		switch kind {
		case EntryDir:
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return errors.WithStack(err)
			}
		case EntryFile:
			if err := extractFile(entry, abs); err != nil {
				return err
			}
		}
		report.Extracted++
		return nil
	}

	if err := format.Extract(ctx, archive, handler); err != nil {
		return report, errors.WithStack(err)
	}
	if report.Extracted == 0 {
		return report, errors.WithStack(ErrNoEntriesExtracted)
	}
	return report, nil
}

// classifyEntry maps archive metadata to an EntryKind. Tar surfaces hard
// links as regular-mode entries with a link target, so the target check must
// come before the mode checks.
func classifyEntry(entry archives.FileInfo) EntryKind {
	mode := entry.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		return EntrySymlink
	case entry.LinkTarget != "":
		return EntryHardLink
	case mode.IsDir():
		return EntryDir
	case mode.IsRegular():
		return EntryFile
	default:
		return EntryOther
	}
}

type verdict struct {
	ok     bool
	reason string
}

func accept() verdict              { return verdict{ok: true} }
func reject(reason string) verdict { return verdict{reason: reason} }

// checkEntry is the pure screening policy for a single archive entry. It
// inspects only the entry's declared path and kind; path resolution against
// the destination happens separately in secureJoin.
func checkEntry(name string, kind EntryKind) verdict {
	switch kind {
	case EntrySymlink, EntryHardLink, EntryOther:
		return reject(kind.String() + " entries are not extracted")
	}
	if name == "" {
		return reject("empty path")
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) ||
		filepath.IsAbs(name) || hasDrivePrefix(name) {
		return reject("absolute path")
	}
	for _, part := range splitArchivePath(name) {
		if part == ".." {
			return reject("path traversal segment")
		}
	}
	return accept()
}

// hasDrivePrefix detects Windows drive paths ("c:...") on every platform;
// filepath.VolumeName only does so when running on Windows.
func hasDrivePrefix(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// splitArchivePath splits on both separators: tarballs built on Windows can
// carry backslashes.
func splitArchivePath(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// secureJoin joins name onto root and verifies the result is still a
// descendant of root. This backstops checkEntry against encodings the
// component scan does not anticipate.
func secureJoin(root, name string) (string, error) {
	abs := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathEscapeError{Path: name, Root: root}
	}
	return abs, nil
}

func extractFile(entry archives.FileInfo, abs string) error {
	src, err := entry.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	// Not all tarballs carry directory entries for their files.
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.WithStack(err)
	}
	dst, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm())
	if err != nil {
		return errors.WithStack(err)
	}
	numBytes, err := io.Copy(dst, src)
	if closeErr := dst.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "error writing to %s", abs)
	}
	if numBytes != entry.Size() {
		return errors.Errorf("only wrote %d bytes to %s; expected %d", numBytes, abs, entry.Size())
	}
	return nil
}
