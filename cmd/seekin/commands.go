// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/SeekIn/cmd/seekin/config"
	"github.com/AleutianAI/SeekIn/pkg/logging"
	"github.com/spf13/cobra"
)

// cli holds state shared by every command of one invocation.
type cli struct {
	configPath string
	dataDir    string
	logLevel   string

	cfg    config.SeekInConfig
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "seekin",
		Short: "Keeper of two evolving lifeforms",
		Long: `seekin asks a language model for the next state of two paired lifeforms,
keeps their history on disk and serves it to a browser.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.teardown()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ./"+config.DefaultPath+" when present)")
	flags.StringVar(&c.dataDir, "data-dir", "", "directory holding the state documents")
	flags.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(
		newEvolveCmd(c),
		newServeCmd(c),
		newHistoryCmd(c),
		newCyclesCmd(c),
		newConfigCmd(c),
	)
	return rootCmd
}

// setup loads the configuration, applies flags and installs the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	c.cfg = cfg
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "seekin",
		Format:  cfg.Logging.Format,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(c.logger.Slog())
	return nil
}

func (c *cli) teardown() {
	if c.logger != nil {
		_ = c.logger.Close()
	}
}
