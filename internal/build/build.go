// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package build holds metadata about the confkit binary itself.
package build

import (
	"os"
	"strconv"
)

var forceProd, _ = strconv.ParseBool(os.Getenv("CONFKIT_PROD"))

// Variables in this file are set via ldflags.
var (
	IsDev      = Version == "0.0.0-dev" && !forceProd
	Version    = "0.0.0-dev"
	Commit     = "none"
	CommitDate = "unknown"
)
