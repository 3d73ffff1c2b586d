// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package registry

import (
	"strings"

	"github.com/pkg/errors"
)

// ValidateName checks that a package name is safe to use as a filesystem
// component. Names are either "name" or "@scope/name"; neither segment may
// be a dot path or contain separators.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("package name is empty")
	}

	segments := []string{name}
	if strings.HasPrefix(name, "@") {
		scope, rest, found := strings.Cut(name, "/")
		if !found || len(scope) < 2 {
			return errors.Errorf("invalid scoped package name %q", name)
		}
		segments = []string{strings.TrimPrefix(scope, "@"), rest}
	}

	for _, seg := range segments {
		switch {
		case seg == "" || seg == "." || seg == "..":
			return errors.Errorf("invalid package name %q", name)
		case strings.ContainsAny(seg, `/\`):
			return errors.Errorf("package name %q contains a path separator", name)
		}
	}
	return nil
}

// SplitName returns the scope (without the leading "@", empty for unscoped
// names) and the bare name.
func SplitName(name string) (scope, base string) {
	if strings.HasPrefix(name, "@") {
		if s, rest, found := strings.Cut(name, "/"); found {
			return strings.TrimPrefix(s, "@"), rest
		}
	}
	return "", name
}
