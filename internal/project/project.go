// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package project reads confkit.json, the project manifest declaring
// top-level package ranges. The manifest is JSON with comments and
// trailing commas allowed (JWCC), standardized via hujson before parsing.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"

	"go.confkit.dev/confkit/internal/cachehash"
)

const ConfigName = "confkit.json"

type Config struct {
	// Packages maps package name to the declared semver range.
	Packages map[string]string `json:"packages"`
}

// Load reads the manifest from dir. A missing manifest returns (nil, nil);
// callers fall back to inferring roots from the lockfile.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	cfg := &Config{}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

// ConfigHash fingerprints the manifest for change detection.
func (c *Config) ConfigHash() (string, error) {
	return cachehash.JSON(c)
}
