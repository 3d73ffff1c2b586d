// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package cas

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.confkit.dev/confkit/internal/fileutil"
)

func tarGz(t *testing.T, files map[string]string, mode int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, contents := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: mode,
			Size: int64(len(contents)),
		}))
		_, err := tw.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestPutGetVerify(t *testing.T) {
	store := New(t.TempDir())
	data := []byte("artifact bytes")

	digest, err := store.Put(data)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)

	got, err := store.Get(digest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := store.Verify(digest)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetMissing(t *testing.T) {
	store := New(t.TempDir())
	sum := sha256.Sum256([]byte("never stored"))
	_, err := store.Get(hex.EncodeToString(sum[:]))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutExistingBlobIsNoop(t *testing.T) {
	store := New(t.TempDir())
	digest, err := store.Put([]byte("stable"))
	require.NoError(t, err)

	before, err := os.Stat(store.BlobPath(digest))
	require.NoError(t, err)

	again, err := store.Put([]byte("stable"))
	require.NoError(t, err)
	assert.Equal(t, digest, again)

	after, err := os.Stat(store.BlobPath(digest))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "existing blob was rewritten")
}

func TestBlobSharding(t *testing.T) {
	store := New(t.TempDir())
	digest, err := store.Put([]byte("sharded"))
	require.NoError(t, err)

	path := store.BlobPath(digest)
	assert.Equal(t,
		filepath.Join(store.Root(), "cache", "sha256", digest[:2], digest[2:]),
		path)
	assert.FileExists(t, path)
}

func TestFlattenName(t *testing.T) {
	assert.Equal(t, "_scope_name", FlattenName("@scope/name"))
	assert.Equal(t, "plain", FlattenName("plain"))
}

func TestPackagePath(t *testing.T) {
	store := New("/root/of/store")
	assert.Equal(t,
		filepath.Join("/root/of/store", "store", "_t_starter", "1.0.0"),
		store.PackagePath("@t/starter", "1.0.0"))
}

func TestExtractPackageRecreatesDirectory(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	first := tarGz(t, map[string]string{"old.toml": "old"}, 0o644)
	_, err := store.ExtractPackage(ctx, first, "@t/starter", "1.0.0")
	require.NoError(t, err)

	second := tarGz(t, map[string]string{"new.toml": "new"}, 0o644)
	extracted, err := store.ExtractPackage(ctx, second, "@t/starter", "1.0.0")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(extracted.Path, "new.toml"))
	assert.NoFileExists(t, filepath.Join(extracted.Path, "old.toml"),
		"stale files survived re-extraction")
}

func TestExtractPackageStripsExecuteBits(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no execute bits on windows")
	}
	store := New(t.TempDir())

	extracted, err := store.ExtractPackage(context.Background(),
		tarGz(t, map[string]string{"run.sh": "#!/bin/sh\n"}, 0o755), "tools", "1.0.0")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(extracted.Path, "run.sh"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&0o111, "execute bits survived extraction")
}

func TestExtractPackageFailureLeavesNothing(t *testing.T) {
	store := New(t.TempDir())

	malicious := tarGz(t, map[string]string{"../../escape": "x"}, 0o644)
	_, err := store.ExtractPackage(context.Background(), malicious, "evil", "1.0.0")
	require.ErrorIs(t, err, fileutil.ErrNoEntriesExtracted)
	assert.False(t, fileutil.Exists(store.PackagePath("evil", "1.0.0")),
		"partial extraction directory left behind")
}

func TestExtractPackageReportsSkippedEntries(t *testing.T) {
	store := New(t.TempDir())

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "safe.toml", Mode: 0o644, Size: 2,
	}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "evil", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd",
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	extracted, err := store.ExtractPackage(context.Background(), buf.Bytes(), "mixed", "1.0.0")
	require.NoError(t, err)
	require.Len(t, extracted.Warnings, 1)
	assert.Contains(t, extracted.Warnings[0], "symlink")
}
