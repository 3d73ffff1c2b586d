// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalDir serves registry metadata and tarballs from a directory tree:
//
//	<root>/<name>/versions.json
//	<root>/<name>/<version>.tgz
//
// It backs offline and development setups. The production HTTP transport
// is a separate collaborator and lives outside this module.
type LocalDir struct {
	root string
}

func NewLocalDir(root string) *LocalDir {
	return &LocalDir{root: root}
}

type versionsDoc struct {
	Versions map[string]struct {
		Yanked       bool              `json:"yanked,omitempty"`
		YankedReason string            `json:"yanked_reason,omitempty"`
		Dependencies map[string]string `json:"dependencies,omitempty"`
	} `json:"versions"`
}

func (l *LocalDir) packageDir(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(name)), nil
}

func (l *LocalDir) PackageVersions(_ context.Context, name string) (*PackageVersions, error) {
	dir, err := l.packageDir(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "versions.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(ErrPackageNotFound, name)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	doc := versionsDoc{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing versions.json for %q", name)
	}
	out := &PackageVersions{Name: name, Versions: map[string]VersionInfo{}}
	for version, info := range doc.Versions {
		out.Versions[version] = VersionInfo{
			Yanked:       info.Yanked,
			YankedReason: info.YankedReason,
			Dependencies: info.Dependencies,
		}
	}
	return out, nil
}

func (l *LocalDir) TarballInfo(_ context.Context, name, version string) (*TarballInfo, error) {
	dir, err := l.packageDir(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, version+".tgz")
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrVersionNotFound, "%s@%s", name, version)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &TarballInfo{URL: "file://" + filepath.ToSlash(abs)}, nil
}

func (l *LocalDir) DownloadTarball(_ context.Context, url string) ([]byte, error) {
	path, found := strings.CutPrefix(url, "file://")
	if !found {
		return nil, errors.Errorf("local registry cannot fetch %q", url)
	}
	data, err := os.ReadFile(filepath.FromSlash(path))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}
