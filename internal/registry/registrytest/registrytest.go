// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package registrytest provides an in-memory registry.Client for tests.
package registrytest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"go.confkit.dev/confkit/internal/registry"
)

// Fake is an in-memory registry. Publish versions and tarballs up front,
// then hand it to the code under test. Counters record how often the
// network-shaped methods were hit, which the idempotency tests rely on.
type Fake struct {
	mu       sync.Mutex
	packages map[string]map[string]registry.VersionInfo
	tarballs map[string][]byte // keyed by URL

	MetadataRequests int
	Downloads        int
}

func New() *Fake {
	return &Fake{
		packages: map[string]map[string]registry.VersionInfo{},
		tarballs: map[string][]byte{},
	}
}

// Publish registers a live version with the given dependency ranges and a
// one-file tarball as its artifact.
func (f *Fake) Publish(name, version string, deps map[string]string) {
	f.PublishFiles(name, version, deps, map[string]string{
		"conf/default.toml": "published = true\n",
	})
}

// PublishYanked registers a yanked version.
func (f *Fake) PublishYanked(name, version, reason string, deps map[string]string) {
	f.PublishFiles(name, version, deps, map[string]string{
		"conf/default.toml": "published = true\n",
	})
	f.mu.Lock()
	defer f.mu.Unlock()
	info := f.packages[name][version]
	info.Yanked = true
	info.YankedReason = reason
	f.packages[name][version] = info
}

// PublishFiles registers a live version whose tarball contains the given
// path -> contents files.
func (f *Fake) PublishFiles(name, version string, deps map[string]string, files map[string]string) {
	f.PublishTarball(name, version, deps, TarGz(files))
}

// PublishTarball registers a live version with raw artifact bytes.
func (f *Fake) PublishTarball(name, version string, deps map[string]string, tarball []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.packages[name] == nil {
		f.packages[name] = map[string]registry.VersionInfo{}
	}
	f.packages[name][version] = registry.VersionInfo{Dependencies: deps}
	f.tarballs[f.url(name, version)] = tarball
}

// CorruptTarball replaces the stored artifact bytes for a version without
// touching its metadata.
func (f *Fake) CorruptTarball(name, version string, tarball []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tarballs[f.url(name, version)] = tarball
}

func (f *Fake) url(name, version string) string {
	return fmt.Sprintf("https://registry.confkit.test/%s/%s.tgz", name, version)
}

func (f *Fake) PackageVersions(_ context.Context, name string) (*registry.PackageVersions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MetadataRequests++

	versions, ok := f.packages[name]
	if !ok {
		return nil, errors.Wrap(registry.ErrPackageNotFound, name)
	}
	out := &registry.PackageVersions{Name: name, Versions: map[string]registry.VersionInfo{}}
	for v, info := range versions {
		out.Versions[v] = info
	}
	return out, nil
}

func (f *Fake) TarballInfo(_ context.Context, name, version string) (*registry.TarballInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.packages[name][version]; !ok {
		return nil, errors.Wrapf(registry.ErrVersionNotFound, "%s@%s", name, version)
	}
	return &registry.TarballInfo{URL: f.url(name, version)}, nil
}

func (f *Fake) DownloadTarball(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Downloads++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := f.tarballs[url]
	if !ok {
		return nil, errors.Errorf("no tarball at %s", url)
	}
	return bytes.Clone(data), nil
}

// TarGz builds a gzipped tarball from a path -> contents map. Paths use
// forward slashes.
func TarGz(files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for path, contents := range files {
		hdr := &tar.Header{
			Name: path,
			Mode: 0o644,
			Size: int64(len(contents)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(contents)); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := gz.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
