// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package resolver computes one consistent version per package from a set
// of root semver constraints, discovering transitive dependencies lazily
// through the registry collaborator.
//
// The search is a deterministic backtracking walk over the constraint
// model: one decision per package, candidates ordered newest-first,
// packages visited in name order. Among all satisfying assignments it
// therefore picks the newest compatible version of every package, and a
// package never resolves to two versions project-wide.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.confkit.dev/confkit/internal/lockfile"
	"go.confkit.dev/confkit/internal/registry"
)

// rootRequirer labels constraints that come from the resolution request
// itself rather than from another package.
const rootRequirer = "(root)"

// Options tunes one resolution. The zero value is the install-mode policy:
// yanked versions are excluded unless the lockfile already pins them, and
// locked versions are preferred when they still satisfy all constraints.
type Options struct {
	// Lockfile, when set, supplies version pins. Pinned versions are tried
	// first (unless PreferLatest) and excepted from the yanked exclusion
	// (unless NoYankedFromLock).
	Lockfile *lockfile.File

	// PreferLatest ignores lockfile pins when ordering candidates, so
	// resolution moves to the newest satisfying versions. Update mode.
	PreferLatest bool

	// IncludeYanked admits yanked versions as ordinary candidates.
	IncludeYanked bool

	// NoYankedFromLock disables the lockfile-pin exception to the yanked
	// exclusion.
	NoYankedFromLock bool
}

// Resolved is the chosen version of one package.
type Resolved struct {
	Version      string
	Dependencies map[string]string
	Yanked       bool
	YankedReason string
}

// Resolution is a complete consistent assignment for every package
// reachable from the roots.
type Resolution struct {
	Packages map[string]Resolved
	Warnings []string
}

type Resolver struct {
	reg registry.Client
}

func New(reg registry.Client) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve satisfies the root constraints and every transitively declared
// dependency range, or fails with a *ConflictError or *YankedError.
func (r *Resolver) Resolve(ctx context.Context, roots map[string]string, opts Options) (*Resolution, error) {
	s := &search{
		ctx:      ctx,
		reg:      r.reg,
		opts:     opts,
		meta:     map[string]*registry.PackageVersions{},
		reqs:     map[string][]requirement{},
		assigned: map[string]*candidate{},
		warned:   map[string]bool{},
	}

	names := lo.Keys(roots)
	sort.Strings(names)
	for _, name := range names {
		if err := registry.ValidateName(name); err != nil {
			return nil, err
		}
		rng, err := parseRange(roots[name])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid range %q for %q", roots[name], name)
		}
		s.reqs[name] = append(s.reqs[name], requirement{
			Requirement: Requirement{From: rootRequirer, Range: roots[name]},
			rng:         rng,
		})
	}

	if err := s.solve(); err != nil {
		return nil, err
	}

	out := &Resolution{Packages: map[string]Resolved{}, Warnings: s.warnings}
	for name, c := range s.assigned {
		out.Packages[name] = Resolved{
			Version:      c.key,
			Dependencies: lo.Assign(map[string]string{}, c.info.Dependencies),
			Yanked:       c.info.Yanked,
			YankedReason: c.info.YankedReason,
		}
	}
	return out, nil
}

type requirement struct {
	Requirement
	rng *semver.Constraints
}

type candidate struct {
	key       string // version exactly as the registry lists it
	version   *semver.Version
	info      registry.VersionInfo
	depRanges map[string]*semver.Constraints
}

// search holds all mutable state for a single Resolve call. Registry
// metadata is cached here, scoped to the call; there is no process-wide
// cache.
type search struct {
	ctx  context.Context
	reg  registry.Client
	opts Options

	meta     map[string]*registry.PackageVersions
	reqs     map[string][]requirement
	assigned map[string]*candidate

	warnings []string
	warned   map[string]bool
}

// solve assigns a version to the first (name-ascending) constrained but
// unassigned package and recurses. Candidate order makes the outcome
// deterministic; backtracking makes it complete.
func (s *search) solve() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	name := s.nextUnassigned()
	if name == "" {
		return nil
	}

	cands, yankedOnly, err := s.candidates(name)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		if len(yankedOnly) > 0 {
			top := yankedOnly[0]
			return &YankedError{Name: name, Version: top.key, Reason: top.info.YankedReason}
		}
		return s.conflict(name)
	}

	var deadEnd error
	for _, c := range cands {
		if !s.compatibleWithAssigned(c) {
			continue
		}
		added := s.assign(name, c)
		err := s.solve()
		if err == nil {
			return nil
		}
		if !isResolutionFailure(err) {
			return err
		}
		if deadEnd == nil {
			deadEnd = err
		}
		s.unassign(name, added)
	}

	if deadEnd != nil {
		return deadEnd
	}
	return s.conflict(name)
}

func (s *search) nextUnassigned() string {
	names := lo.Keys(s.reqs)
	sort.Strings(names)
	for _, name := range names {
		if _, done := s.assigned[name]; !done {
			return name
		}
	}
	return ""
}

// candidates returns the versions of name satisfying every requirement
// currently recorded against it, newest first. Yanked versions are
// excluded per the options, with a warning; satisfying-but-yanked versions
// are returned separately so the caller can distinguish "nothing
// satisfies" from "only yanked satisfies".
func (s *search) candidates(name string) (cands, yankedOnly []*candidate, err error) {
	meta, err := s.metaFor(name)
	if err != nil {
		return nil, nil, err
	}

	versions := make([]*candidate, 0, len(meta.Versions))
	for key, info := range meta.Versions {
		v, err := semver.NewVersion(key)
		if err != nil {
			s.warnOnce("badver:"+name+"@"+key,
				fmt.Sprintf("ignoring unparseable version %q of %q", key, name))
			continue
		}
		versions = append(versions, &candidate{key: key, version: v, info: info})
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].version.GreaterThan(versions[j].version)
	})

	locked := s.lockedVersion(name)
	for _, c := range versions {
		if !s.satisfiesAll(c.version, name) {
			continue
		}
		if c.info.Yanked {
			if locked == c.key && !s.opts.NoYankedFromLock {
				s.warnOnce("pin:"+name+"@"+c.key, yankedPinWarning(name, c))
			} else if !s.opts.IncludeYanked {
				s.warnOnce("skip:"+name+"@"+c.key, yankedSkipWarning(name, c))
				yankedOnly = append(yankedOnly, c)
				continue
			}
		}
		if c.depRanges, err = parseDepRanges(name, c); err != nil {
			return nil, nil, err
		}
		cands = append(cands, c)
	}

	// Install mode keeps the project where the lockfile put it: a still
	// satisfying pinned version wins over newer ones.
	if !s.opts.PreferLatest && locked != "" {
		for i, c := range cands {
			if c.key == locked && i > 0 {
				pinned := cands[i]
				copy(cands[1:i+1], cands[:i])
				cands[0] = pinned
				break
			}
		}
	}
	return cands, yankedOnly, nil
}

func (s *search) metaFor(name string) (*registry.PackageVersions, error) {
	if meta, ok := s.meta[name]; ok {
		return meta, nil
	}
	meta, err := s.reg.PackageVersions(s.ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "loading versions for %q", name)
	}
	s.meta[name] = meta
	return meta, nil
}

func (s *search) lockedVersion(name string) string {
	if s.opts.Lockfile == nil {
		return ""
	}
	if entry := s.opts.Lockfile.Packages[name]; entry != nil {
		return entry.Version
	}
	return ""
}

func (s *search) satisfiesAll(v *semver.Version, name string) bool {
	for _, req := range s.reqs[name] {
		if !req.rng.Check(v) {
			return false
		}
	}
	return true
}

// compatibleWithAssigned rejects a candidate whose declared dependency
// ranges contradict versions already fixed earlier in the search.
func (s *search) compatibleWithAssigned(c *candidate) bool {
	for dep, rng := range c.depRanges {
		if chosen, done := s.assigned[dep]; done && !rng.Check(chosen.version) {
			return false
		}
	}
	return true
}

// assign fixes name to c and records c's dependency ranges as new
// requirements. It returns the dependency names that gained a requirement
// so unassign can undo exactly that.
func (s *search) assign(name string, c *candidate) []string {
	s.assigned[name] = c
	from := name + "@" + c.key

	deps := lo.Keys(c.depRanges)
	sort.Strings(deps)
	for _, dep := range deps {
		s.reqs[dep] = append(s.reqs[dep], requirement{
			Requirement: Requirement{From: from, Range: c.info.Dependencies[dep]},
			rng:         c.depRanges[dep],
		})
	}
	return deps
}

func (s *search) unassign(name string, added []string) {
	delete(s.assigned, name)
	for _, dep := range added {
		reqs := s.reqs[dep]
		s.reqs[dep] = reqs[:len(reqs)-1]
		if len(s.reqs[dep]) == 0 {
			delete(s.reqs, dep)
		}
	}
}

// conflict builds the error for a package with no satisfying version,
// citing the narrowest pair of incompatible requirements it can find.
func (s *search) conflict(name string) error {
	reqs := s.reqs[name]
	meta := s.meta[name]

	var versions []*semver.Version
	if meta != nil {
		for key := range meta.Versions {
			if v, err := semver.NewVersion(key); err == nil {
				versions = append(versions, v)
			}
		}
	}

	for i := range reqs {
		for j := i + 1; j < len(reqs); j++ {
			if !jointlySatisfiable(versions, reqs[i].rng, reqs[j].rng) {
				return &ConflictError{
					Name:         name,
					Requirements: []Requirement{reqs[i].Requirement, reqs[j].Requirement},
				}
			}
		}
	}

	all := make([]Requirement, len(reqs))
	for i, req := range reqs {
		all[i] = req.Requirement
	}
	return &ConflictError{Name: name, Requirements: all}
}

func jointlySatisfiable(versions []*semver.Version, a, b *semver.Constraints) bool {
	for _, v := range versions {
		if a.Check(v) && b.Check(v) {
			return true
		}
	}
	return false
}

func (s *search) warnOnce(key, msg string) {
	if s.warned[key] {
		return
	}
	s.warned[key] = true
	s.warnings = append(s.warnings, msg)
}

func yankedSkipWarning(name string, c *candidate) string {
	msg := fmt.Sprintf("skipped yanked version %s of %q", c.key, name)
	if c.info.YankedReason != "" {
		msg += fmt.Sprintf(" (%s)", c.info.YankedReason)
	}
	return msg
}

func yankedPinWarning(name string, c *candidate) string {
	msg := fmt.Sprintf("version %s of %q is yanked but kept because the lockfile pins it", c.key, name)
	if c.info.YankedReason != "" {
		msg += fmt.Sprintf(" (%s)", c.info.YankedReason)
	}
	return msg
}

func parseDepRanges(name string, c *candidate) (map[string]*semver.Constraints, error) {
	if c.depRanges != nil {
		return c.depRanges, nil
	}
	out := make(map[string]*semver.Constraints, len(c.info.Dependencies))
	for dep, raw := range c.info.Dependencies {
		if err := registry.ValidateName(dep); err != nil {
			return nil, errors.Wrapf(err, "%s@%s declares invalid dependency", name, c.key)
		}
		rng, err := parseRange(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "%s@%s declares invalid range %q for %q", name, c.key, raw, dep)
		}
		out[dep] = rng
	}
	return out, nil
}

func parseRange(raw string) (*semver.Constraints, error) {
	if raw == "" || raw == "latest" {
		raw = "*"
	}
	return semver.NewConstraint(raw)
}

func isResolutionFailure(err error) bool {
	var ce *ConflictError
	var ye *YankedError
	return errors.As(err, &ce) || errors.As(err, &ye)
}
