// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package lockfile

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Validate returns human-readable problems with the lockfile. An empty
// slice means the lockfile is well formed. It never fails: a nil lockfile
// is reported as a problem like any other.
func Validate(f *File) []string {
	if f == nil {
		return []string{"lockfile is missing or unparseable"}
	}

	var problems []string
	if f.FormatVersion != FileVersion {
		problems = append(problems,
			fmt.Sprintf("unsupported lockfile version %d (expected %d)", f.FormatVersion, FileVersion))
	}

	names := lo.Keys(f.Packages)
	sort.Strings(names)
	for _, name := range names {
		entry := f.Packages[name]
		if entry == nil {
			problems = append(problems, fmt.Sprintf("package %q: entry is empty", name))
			continue
		}
		if entry.Version == "" {
			problems = append(problems, fmt.Sprintf("package %q: missing version", name))
		}
		if entry.Resolved == "" {
			problems = append(problems, fmt.Sprintf("package %q: missing resolved URL", name))
		}
		if entry.Integrity == "" {
			problems = append(problems, fmt.Sprintf("package %q: missing integrity hash", name))
		} else if _, err := IntegrityToHex(entry.Integrity); err != nil {
			problems = append(problems, fmt.Sprintf("package %q: malformed integrity hash %q", name, entry.Integrity))
		}

		deps := lo.Keys(entry.Dependencies)
		sort.Strings(deps)
		for _, dep := range deps {
			if entry.Dependencies[dep] == "" {
				problems = append(problems, fmt.Sprintf("package %q: empty range for dependency %q", name, dep))
			}
		}
	}
	return problems
}
