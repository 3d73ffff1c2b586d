// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package main

import (
	"os"

	"go.confkit.dev/confkit/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
