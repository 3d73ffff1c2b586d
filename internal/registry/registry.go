// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package registry defines the narrow contract the install engine needs
// from a package registry. Transport, authentication and retries live in
// the implementations, not here.
package registry

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrPackageNotFound = errors.New("package not found in registry")
	ErrVersionNotFound = errors.New("package version not found in registry")
)

// VersionInfo is the registry's published metadata for one version of a
// package.
type VersionInfo struct {
	Yanked       bool
	YankedReason string

	// Dependencies maps package name to the semver range this version
	// declares against it.
	Dependencies map[string]string
}

// PackageVersions is the full version listing for one package.
type PackageVersions struct {
	Name     string
	Versions map[string]VersionInfo
}

// TarballInfo locates the artifact for one package version.
type TarballInfo struct {
	URL string
}

// Client is the registry collaborator consumed by the resolver and the
// installer.
type Client interface {
	PackageVersions(ctx context.Context, name string) (*PackageVersions, error)
	TarballInfo(ctx context.Context, name, version string) (*TarballInfo, error)
	DownloadTarball(ctx context.Context, url string) ([]byte, error)
}
