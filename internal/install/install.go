// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package install orchestrates the engine: resolve constraints, then for
// each package fetch, verify, cache, extract and link, and finally record
// the outcome in the lockfile.
//
// Per-package pipelines run on a bounded worker pool and fail
// independently; the lockfile is written exactly once, after every
// pipeline has settled, and contains entries only for packages that fully
// succeeded. The lockfile write is atomic at the filesystem level, but
// concurrent confkit processes against the same project are not otherwise
// coordinated.
package install

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.confkit.dev/confkit/internal/cas"
	"go.confkit.dev/confkit/internal/fileutil"
	"go.confkit.dev/confkit/internal/lockfile"
	"go.confkit.dev/confkit/internal/project"
	"go.confkit.dev/confkit/internal/registry"
	"go.confkit.dev/confkit/internal/resolver"
	"go.confkit.dev/confkit/internal/ux"
	"go.confkit.dev/confkit/internal/xdg"
)

const (
	// DefaultDepsDir is where installed packages are linked, relative to
	// the project directory.
	DefaultDepsDir = "confkit_modules"

	defaultWorkers      = 4
	defaultFetchTimeout = 60 * time.Second
)

type Options struct {
	ProjectDir string
	Registry   registry.Client

	// StoreRoot is the content-addressable store root. Defaults to the
	// user cache directory.
	StoreRoot string

	// DepsDir overrides DefaultDepsDir.
	DepsDir string

	// Workers bounds how many package pipelines run at once.
	Workers int

	// FetchTimeout is the per-package deadline covering fetch and
	// extraction.
	FetchTimeout time.Duration

	Stderr io.Writer
}

type Installer struct {
	projectDir   string
	depsDir      string
	store        *cas.Store
	reg          registry.Client
	res          *resolver.Resolver
	workers      int
	fetchTimeout time.Duration
	stderr       io.Writer
}

func New(opts Options) (*Installer, error) {
	if opts.ProjectDir == "" {
		return nil, errors.New("install: ProjectDir is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("install: Registry is required")
	}

	storeRoot := opts.StoreRoot
	if storeRoot == "" {
		storeRoot = xdg.CacheSubpath("confkit")
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Installer{
		projectDir:   opts.ProjectDir,
		depsDir:      lo.CoalesceOrEmpty(opts.DepsDir, DefaultDepsDir),
		store:        cas.New(storeRoot),
		reg:          opts.Registry,
		res:          resolver.New(opts.Registry),
		workers:      lo.CoalesceOrEmpty(opts.Workers, defaultWorkers),
		fetchTimeout: lo.CoalesceOrEmpty(opts.FetchTimeout, defaultFetchTimeout),
		stderr:       stderr,
	}, nil
}

// Store exposes the underlying content-addressable store.
func (i *Installer) Store() *cas.Store { return i.store }

// Result summarizes one install or update batch.
type Result struct {
	Installed []string // "name@version", freshly fetched and linked
	Skipped   []string // already at the resolved version, no I/O performed
	Failed    map[string]error
	Warnings  []string
}

// Install resolves the given root constraints and installs their closure.
// Lockfile entries outside the newly resolved set are preserved untouched.
func (i *Installer) Install(ctx context.Context, roots map[string]string) (*Result, error) {
	lock := lockfile.Read(i.projectDir)
	res, err := i.res.Resolve(ctx, roots, resolver.Options{Lockfile: lock})
	if err != nil {
		return nil, err
	}
	return i.apply(ctx, lock, res)
}

// Update re-resolves toward the newest satisfying versions. Roots come
// from the project manifest, or are inferred from the lockfile as the
// packages nothing else depends on. Naming packages narrows the update to
// them: each named package is constrained to ^<its locked version>.
func (i *Installer) Update(ctx context.Context, names ...string) (*Result, error) {
	lock := lockfile.Read(i.projectDir)

	cfg, err := project.Load(i.projectDir)
	if err != nil {
		return nil, err
	}

	roots := map[string]string{}
	if cfg != nil && len(cfg.Packages) > 0 {
		roots = lo.Assign(map[string]string{}, cfg.Packages)
	} else if lock != nil {
		roots = inferRoots(lock)
	}

	for _, name := range names {
		entry := lockEntry(lock, name)
		if entry == nil {
			return nil, errors.Errorf("package %q is not in the lockfile", name)
		}
		roots[name] = "^" + entry.Version
	}
	if len(roots) == 0 {
		return nil, errors.New("nothing to update: no manifest and no lockfile")
	}

	res, err := i.res.Resolve(ctx, roots, resolver.Options{Lockfile: lock, PreferLatest: true})
	if err != nil {
		return nil, err
	}
	return i.apply(ctx, lock, res)
}

// Installed reports one exact-version install.
type Installed struct {
	Integrity string
	StorePath string
}

// InstallPackage fetches, verifies, extracts and links one exact package
// version, updating the lockfile additively. A yanked version is refused
// unless the lockfile already pins it.
func (i *Installer) InstallPackage(ctx context.Context, name, version string) (*Installed, error) {
	if err := registry.ValidateName(name); err != nil {
		return nil, err
	}

	lock := lockfile.Read(i.projectDir)
	meta, err := i.reg.PackageVersions(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "loading versions for %q", name)
	}
	info, ok := meta.Versions[version]
	if !ok {
		return nil, errors.Wrapf(registry.ErrVersionNotFound, "%s@%s", name, version)
	}
	if info.Yanked {
		if entry := lockEntry(lock, name); entry == nil || entry.Version != version {
			return nil, &resolver.YankedError{Name: name, Version: version, Reason: info.YankedReason}
		}
	}

	entry, _, err := i.installOne(ctx, lock, name, resolver.Resolved{
		Version:      version,
		Dependencies: info.Dependencies,
		Yanked:       info.Yanked,
		YankedReason: info.YankedReason,
	})
	if err != nil {
		return nil, err
	}
	merged := lockfile.Merge(lock, map[string]*lockfile.Package{name: entry})
	if err := lockfile.Write(merged, i.projectDir); err != nil {
		return nil, err
	}
	return &Installed{
		Integrity: entry.Integrity,
		StorePath: i.store.PackagePath(name, version),
	}, nil
}

// Uninstall removes packages from the project, refusing while any
// remaining lockfile entry still depends on one of them.
func (i *Installer) Uninstall(ctx context.Context, names ...string) error {
	lock := lockfile.Read(i.projectDir)
	if lock == nil {
		return errors.New("no lockfile in project")
	}

	removing := map[string]bool{}
	for _, name := range names {
		if lockEntry(lock, name) == nil {
			return errors.Errorf("package %q is not in the lockfile", name)
		}
		removing[name] = true
	}

	keepers := lo.Keys(lock.Packages)
	sort.Strings(keepers)
	for _, keeper := range keepers {
		if removing[keeper] {
			continue
		}
		deps := lo.Keys(lock.Packages[keeper].Dependencies)
		sort.Strings(deps)
		for _, dep := range deps {
			if removing[dep] {
				return errors.Errorf("cannot remove %q: %q still depends on it", dep, keeper)
			}
		}
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := lock.Packages[name]
		linkPath, err := i.linkPath(name)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(linkPath); err != nil {
			return errors.WithStack(err)
		}
		if err := i.store.RemovePackage(name, entry.Version); err != nil {
			return err
		}
	}
	return lockfile.Write(lockfile.Remove(lock, names...), i.projectDir)
}

// ValidateLockfile surfaces structural problems with the project's
// lockfile.
func (i *Installer) ValidateLockfile() []string {
	return lockfile.Validate(lockfile.Read(i.projectDir))
}

type outcome struct {
	name     string
	entry    *lockfile.Package
	warnings []string
	skipped  bool
	err      error
}

// apply runs the per-package pipelines for a resolution and writes the
// lockfile once after all of them settle.
func (i *Installer) apply(ctx context.Context, lock *lockfile.File, res *resolver.Resolution) (*Result, error) {
	names := lo.Keys(res.Packages)
	sort.Strings(names)

	outcomes := make([]outcome, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for idx, name := range names {
		r := res.Packages[name]
		g.Go(func() error {
			if i.upToDate(lock, name, r.Version) {
				outcomes[idx] = outcome{name: name, skipped: true}
				return nil
			}
			entry, warnings, err := i.installOne(gctx, lock, name, r)
			outcomes[idx] = outcome{name: name, entry: entry, warnings: warnings, err: err}
			// Pipeline failures isolate to their package; never cancel the
			// rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Failed: map[string]error{}, Warnings: res.Warnings}
	updates := map[string]*lockfile.Package{}
	var failures []error
	for _, o := range outcomes {
		switch {
		case o.skipped:
			result.Skipped = append(result.Skipped, o.name)
		case o.err != nil:
			result.Failed[o.name] = o.err
			failures = append(failures, errors.Wrap(o.err, o.name))
		default:
			updates[o.name] = o.entry
			result.Installed = append(result.Installed, o.name+"@"+o.entry.Version)
			result.Warnings = append(result.Warnings, o.warnings...)
		}
	}

	for _, w := range result.Warnings {
		ux.Fwarning(i.stderr, "%s\n", w)
	}

	if err := lockfile.Write(lockfile.Merge(lock, updates), i.projectDir); err != nil {
		return nil, err
	}
	return result, stderrors.Join(failures...)
}

// upToDate implements the idempotency check: a package whose resolved
// version matches the locked version, with its store directory and project
// link in place, incurs no fetch, extraction or linking.
func (i *Installer) upToDate(lock *lockfile.File, name, version string) bool {
	entry := lockEntry(lock, name)
	if entry == nil || entry.Version != version {
		return false
	}
	if !fileutil.IsDir(i.store.PackagePath(name, version)) {
		return false
	}
	linkPath, err := i.linkPath(name)
	return err == nil && fileutil.Exists(linkPath)
}

// installOne is the pipeline for a single package: fetch, verify, cache,
// extract, link. Any failure leaves no partial store directory behind.
func (i *Installer) installOne(ctx context.Context, lock *lockfile.File, name string, r resolver.Resolved) (*lockfile.Package, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
	defer cancel()

	info, err := i.reg.TarballInfo(ctx, name, r.Version)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "locating tarball for %s@%s", name, r.Version)
	}
	data, err := i.reg.DownloadTarball(ctx, info.URL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "downloading %s", info.URL)
	}

	integrity := lockfile.IntegrityHash(data)
	if prev := lockEntry(lock, name); prev != nil &&
		prev.Version == r.Version && prev.Integrity != "" && prev.Integrity != integrity {
		return nil, nil, &IntegrityError{Name: name, Version: r.Version, Want: prev.Integrity, Got: integrity}
	}

	if _, err := i.store.Put(data); err != nil {
		return nil, nil, err
	}
	extracted, err := i.store.ExtractPackage(ctx, data, name, r.Version)
	if err != nil {
		return nil, nil, err
	}
	if err := i.link(name, extracted.Path); err != nil {
		// The extraction is complete but unreachable; drop it rather than
		// leave an unlinked store directory for a failed pipeline.
		_ = i.store.RemovePackage(name, r.Version)
		return nil, nil, err
	}

	warnings := make([]string, len(extracted.Warnings))
	for idx, w := range extracted.Warnings {
		warnings[idx] = fmt.Sprintf("%s@%s: %s", name, r.Version, w)
	}
	return &lockfile.Package{
		Version:      r.Version,
		Resolved:     info.URL,
		Integrity:    integrity,
		Dependencies: r.Dependencies,
		Yanked:       r.Yanked,
		YankedReason: r.YankedReason,
	}, warnings, nil
}

func lockEntry(lock *lockfile.File, name string) *lockfile.Package {
	if lock == nil {
		return nil
	}
	return lock.Packages[name]
}

// inferRoots treats packages that no other installed package depends on as
// the project's top-level set, constrained to stay within their current
// major version.
func inferRoots(lock *lockfile.File) map[string]string {
	dependedOn := map[string]bool{}
	for _, entry := range lock.Packages {
		for dep := range entry.Dependencies {
			dependedOn[dep] = true
		}
	}

	roots := map[string]string{}
	for name, entry := range lock.Packages {
		if !dependedOn[name] {
			roots[name] = "^" + entry.Version
		}
	}
	// Every package depending on every other (a cycle) degrades to
	// updating all of them.
	if len(roots) == 0 {
		for name, entry := range lock.Packages {
			roots[name] = "^" + entry.Version
		}
	}
	return roots
}
