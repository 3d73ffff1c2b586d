// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

package cli

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"go.confkit.dev/confkit/internal/install"
	"go.confkit.dev/confkit/internal/ux"
)

func installCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install <package[@range]>...",
		Short: "Resolve and install packages into the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := map[string]string{}
			for _, arg := range args {
				name, rng := splitSpec(arg)
				roots[name] = rng
			}
			inst, err := flags.installer()
			if err != nil {
				return err
			}
			result, err := inst.Install(cmd.Context(), roots)
			if result != nil {
				reportResult(cmd, result)
			}
			return err
		},
	}
}

func updateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update [package]...",
		Short: "Move installed packages to their newest satisfying versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := flags.installer()
			if err != nil {
				return err
			}
			result, err := inst.Update(cmd.Context(), args...)
			if result != nil {
				reportResult(cmd, result)
			}
			return err
		},
	}
}

func removeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <package>...",
		Short: "Remove packages from the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := flags.installer()
			if err != nil {
				return err
			}
			if err := inst.Uninstall(cmd.Context(), args...); err != nil {
				return err
			}
			ux.Fsuccess(cmd.ErrOrStderr(), "removed %s\n", strings.Join(args, ", "))
			return nil
		},
	}
}

func verifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the lockfile for structural problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := flags.installer()
			if err != nil {
				return err
			}
			problems := inst.ValidateLockfile()
			if len(problems) == 0 {
				ux.Fsuccess(cmd.ErrOrStderr(), "lockfile is valid\n")
				return nil
			}
			for _, p := range problems {
				ux.Ferror(cmd.ErrOrStderr(), "%s\n", p)
			}
			return errors.Wrapf(errLockfileInvalid, "%d problem(s) found", len(problems))
		},
	}
}

// splitSpec splits "name@range" into name and range, keeping the "@" that
// starts a scope.
func splitSpec(arg string) (name, rng string) {
	at := strings.LastIndex(arg, "@")
	if at <= 0 {
		return arg, ""
	}
	return arg[:at], arg[at+1:]
}

func reportResult(cmd *cobra.Command, result *install.Result) {
	w := cmd.ErrOrStderr()
	for _, pkg := range result.Installed {
		ux.Fsuccess(w, "installed %s\n", pkg)
	}
	for _, pkg := range result.Skipped {
		ux.Finfo(w, "%s is up to date\n", pkg)
	}
}
