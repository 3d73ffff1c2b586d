// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.confkit.dev/confkit/internal/lockfile"
	"go.confkit.dev/confkit/internal/registry"
	"go.confkit.dev/confkit/internal/registry/registrytest"
)

func resolve(t *testing.T, reg registry.Client, roots map[string]string, opts Options) (*Resolution, error) {
	t.Helper()
	return New(reg).Resolve(context.Background(), roots, opts)
}

func lockWith(entries map[string]string) *lockfile.File {
	lock := lockfile.New()
	for name, version := range entries {
		lock.Packages[name] = &lockfile.Package{
			Version:   version,
			Resolved:  "https://cdn.example/" + name,
			Integrity: lockfile.IntegrityHash([]byte(name)),
		}
	}
	return lock
}

func TestResolveSimpleClosure(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("@t/starter", "1.2.0", map[string]string{"@t/base": "^1.0.0"})
	reg.Publish("@t/base", "1.0.0", nil)
	reg.Publish("@t/base", "1.4.2", nil)

	res, err := resolve(t, reg, map[string]string{"@t/starter": "^1.0.0"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", res.Packages["@t/starter"].Version)
	assert.Equal(t, "1.4.2", res.Packages["@t/base"].Version, "should prefer newest satisfying version")
	assert.Len(t, res.Packages, 2)
}

func TestResolveIsDeterministic(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("a", "1.0.0", map[string]string{"c": "^1.0.0"})
	reg.Publish("b", "1.0.0", map[string]string{"c": "^1.0.0"})
	for _, v := range []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0"} {
		reg.Publish("c", v, nil)
	}
	roots := map[string]string{"a": "^1.0.0", "b": "^1.0.0"}

	first, err := resolve(t, reg, roots, Options{})
	require.NoError(t, err)
	for range 10 {
		again, err := resolve(t, reg, roots, Options{})
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("resolution changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestResolveFlatOneVersionPerPackage(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("a", "1.0.0", map[string]string{"c": "^1.5.0"})
	reg.Publish("b", "1.0.0", map[string]string{"c": "^1.0.0"})
	reg.Publish("c", "1.4.0", nil)
	reg.Publish("c", "1.6.0", nil)

	res, err := resolve(t, reg, map[string]string{"a": "^1.0.0", "b": "^1.0.0"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.6.0", res.Packages["c"].Version)
}

func TestResolveBacktracks(t *testing.T) {
	// The newest version of a is incompatible with b's requirement, so the
	// solver must back off to a@1.0.0.
	reg := registrytest.New()
	reg.Publish("a", "1.0.0", nil)
	reg.Publish("a", "2.0.0", nil)
	reg.Publish("b", "1.0.0", map[string]string{"a": "^1.0.0"})

	res, err := resolve(t, reg, map[string]string{"a": ">=1.0.0", "b": "^1.0.0"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Packages["a"].Version)
	assert.Equal(t, "1.0.0", res.Packages["b"].Version)
}

func TestResolveConflictNamesThePackage(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("a", "1.0.0", map[string]string{"c": "^2.0.0"})
	reg.Publish("b", "1.0.0", map[string]string{"c": "^3.0.0"})
	reg.Publish("c", "2.0.0", nil)
	reg.Publish("c", "3.0.0", nil)

	_, err := resolve(t, reg, map[string]string{"a": "^1.0.0", "b": "^1.0.0"}, Options{})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "c", conflict.Name)
	require.Len(t, conflict.Requirements, 2)

	msg := conflict.Error()
	assert.Contains(t, msg, "^2.0.0 (required by a@1.0.0)")
	assert.Contains(t, msg, "^3.0.0 (required by b@1.0.0)")
}

func TestResolveSkipsYankedWithWarning(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("@t/starter", "1.0.0", nil)
	reg.PublishYanked("@t/starter", "1.1.0", "broken template", nil)

	res, err := resolve(t, reg, map[string]string{"@t/starter": "^1.0.0"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Packages["@t/starter"].Version)

	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), `skipped yanked version 1.1.0 of "@t/starter"`)
}

func TestResolveNeverPicksYankedWithoutPin(t *testing.T) {
	reg := registrytest.New()
	reg.PublishYanked("pkg", "1.0.0", "", nil)
	reg.PublishYanked("pkg", "1.1.0", "", nil)

	_, err := resolve(t, reg, map[string]string{"pkg": "^1.0.0"}, Options{})
	var yanked *YankedError
	require.ErrorAs(t, err, &yanked)
	assert.Equal(t, "pkg", yanked.Name)
	assert.Equal(t, "1.1.0", yanked.Version)
}

func TestResolveKeepsYankedWhenLockfilePinsIt(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("pkg", "1.0.0", nil)
	reg.PublishYanked("pkg", "1.1.0", "security issue", nil)

	res, err := resolve(t, reg, map[string]string{"pkg": "^1.0.0"},
		Options{Lockfile: lockWith(map[string]string{"pkg": "1.1.0"})})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", res.Packages["pkg"].Version)
	assert.True(t, res.Packages["pkg"].Yanked)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "lockfile pins it")
}

func TestResolvePrefersLockedVersion(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("pkg", "1.0.0", nil)
	reg.Publish("pkg", "1.5.0", nil)

	res, err := resolve(t, reg, map[string]string{"pkg": "^1.0.0"},
		Options{Lockfile: lockWith(map[string]string{"pkg": "1.0.0"})})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Packages["pkg"].Version, "install mode should keep the pinned version")
}

func TestResolvePreferLatestIgnoresPins(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("@t/starter", "1.0.0", nil)
	reg.Publish("@t/starter", "1.1.0", nil)

	res, err := resolve(t, reg, map[string]string{"@t/starter": "^1.0.0"}, Options{
		Lockfile:     lockWith(map[string]string{"@t/starter": "1.0.0"}),
		PreferLatest: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", res.Packages["@t/starter"].Version)
}

func TestResolveUnknownPackage(t *testing.T) {
	reg := registrytest.New()
	_, err := resolve(t, reg, map[string]string{"ghost": "^1.0.0"}, Options{})
	assert.ErrorIs(t, err, registry.ErrPackageNotFound)
}

func TestResolveInvalidRootName(t *testing.T) {
	reg := registrytest.New()
	_, err := resolve(t, reg, map[string]string{"../escape": "^1.0.0"}, Options{})
	assert.Error(t, err)
}

func TestResolveEmptyRangeMeansAny(t *testing.T) {
	reg := registrytest.New()
	reg.Publish("pkg", "0.3.0", nil)
	reg.Publish("pkg", "2.0.0", nil)

	res, err := resolve(t, reg, map[string]string{"pkg": ""}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Packages["pkg"].Version)
}
