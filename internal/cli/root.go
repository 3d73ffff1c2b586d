// Copyright 2025 Confkit Authors and contributors. All rights reserved.
// Use of this source code is governed by the license in the LICENSE file.

// Package cli is the thin cobra shell over the install engine. It owns
// argument parsing and exit codes; everything interesting happens in
// internal/install and below.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.confkit.dev/confkit/internal/build"
	"go.confkit.dev/confkit/internal/install"
	"go.confkit.dev/confkit/internal/registry"
)

type rootFlags struct {
	projectDir  string
	registryDir string
	storeRoot   string
	verbose     bool
}

func RootCmd() *cobra.Command {
	flags := &rootFlags{}
	command := &cobra.Command{
		Use:           "confkit",
		Short:         "Reusable configuration packages for your projects",
		Version:       build.Version,
		RunE:          func(cmd *cobra.Command, args []string) error { return cmd.Help() },
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	command.PersistentFlags().StringVarP(&flags.projectDir, "project-dir", "C", ".",
		"project directory containing confkit.json and confkit.lock")
	command.PersistentFlags().StringVar(&flags.registryDir, "registry", os.Getenv("CONFKIT_REGISTRY"),
		"path to a local package registry")
	command.PersistentFlags().StringVar(&flags.storeRoot, "store-root", "",
		"override the package store location")
	command.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"show full error chains")

	command.AddCommand(installCmd(flags))
	command.AddCommand(updateCmd(flags))
	command.AddCommand(removeCmd(flags))
	command.AddCommand(verifyCmd(flags))
	return command
}

func (f *rootFlags) installer() (*install.Installer, error) {
	if f.registryDir == "" {
		return nil, fmt.Errorf("no registry configured: pass --registry or set CONFKIT_REGISTRY")
	}
	return install.New(install.Options{
		ProjectDir: f.projectDir,
		StoreRoot:  f.storeRoot,
		Registry:   registry.NewLocalDir(f.registryDir),
	})
}
