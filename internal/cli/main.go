// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"go.confkit.dev/confkit/internal/fileutil"
	"go.confkit.dev/confkit/internal/install"
	"go.confkit.dev/confkit/internal/resolver"
	"go.confkit.dev/confkit/internal/ux"
)

// Exit codes per error kind, so scripts can react without parsing
// messages.
const (
	exitFailure       = 1
	exitConflict      = 2
	exitYanked        = 3
	exitIntegrity     = 4
	exitUnsafeArchive = 5
	exitSecurity      = 6
	exitLockfile      = 7
)

func Main() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := RootCmd()
	command.SetContext(ctx)
	err := command.Execute()
	if err == nil {
		return 0
	}

	ux.Ferror(os.Stderr, "%v\n", err)
	if verbose, _ := command.PersistentFlags().GetBool("verbose"); verbose {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		conflict  *resolver.ConflictError
		yanked    *resolver.YankedError
		integrity *install.IntegrityError
		escape    *fileutil.PathEscapeError
	)
	switch {
	case errors.As(err, &conflict):
		return exitConflict
	case errors.As(err, &yanked):
		return exitYanked
	case errors.As(err, &integrity):
		return exitIntegrity
	case errors.Is(err, fileutil.ErrNoEntriesExtracted):
		return exitUnsafeArchive
	case errors.As(err, &escape):
		return exitSecurity
	case errors.Is(err, errLockfileInvalid):
		return exitLockfile
	default:
		return exitFailure
	}
}

// errLockfileInvalid marks verify failures so they map to their own exit
// code.
var errLockfileInvalid = errors.New("lockfile is invalid")
