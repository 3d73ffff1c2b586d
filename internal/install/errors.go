// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package install

import "fmt"

// IntegrityError reports that downloaded bytes do not match the integrity
// hash recorded in the lockfile for the same package version.
type IntegrityError struct {
	Name    string
	Version string
	Want    string
	Got     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity mismatch for %s@%s: lockfile records %s, downloaded %s",
		e.Name, e.Version, e.Want, e.Got)
}
