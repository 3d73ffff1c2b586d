// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package resolver

import (
	"fmt"
	"strings"
)

// Requirement records one range requested against a package and who asked
// for it.
type Requirement struct {
	// From is "name@version" of the dependent, or "(root)" for a root
	// constraint.
	From  string
	Range string
}

func (r Requirement) String() string {
	return fmt.Sprintf("%s (required by %s)", r.Range, r.From)
}

// ConflictError reports that no version of a package satisfies all ranges
// requested against it. Requirements holds the minimal incompatible pair
// when one can be identified, otherwise every incoming requirement.
type ConflictError struct {
	Name         string
	Requirements []Requirement
}

func (e *ConflictError) Error() string {
	if len(e.Requirements) == 0 {
		return fmt.Sprintf("version conflict for %q", e.Name)
	}
	reqs := make([]string, len(e.Requirements))
	for i, r := range e.Requirements {
		reqs[i] = r.String()
	}
	return fmt.Sprintf("version conflict for %q: no version satisfies %s",
		e.Name, strings.Join(reqs, " and "))
}

// YankedError reports that the only versions satisfying a package's
// constraints are yanked, and no lockfile pin excepts them.
type YankedError struct {
	Name    string
	Version string
	Reason  string
}

func (e *YankedError) Error() string {
	msg := fmt.Sprintf("%q resolves only to yanked version %s", e.Name, e.Version)
	if e.Reason != "" {
		msg += fmt.Sprintf(" (%s)", e.Reason)
	}
	return msg
}
