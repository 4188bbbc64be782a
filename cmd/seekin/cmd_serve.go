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
	"os/signal"
	"syscall"

	"github.com/AleutianAI/SeekIn/cmd/seekin/config"
	"github.com/AleutianAI/SeekIn/services/evolution"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		port         int
		staticDir    string
		enableEvolve bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the state documents, history endpoints and static files",
		Long: `Starts the HTTP server. The cached documents follow changes written by
scheduled "seekin evolve" runs. With --enable-evolve, POST /api/evolve runs a
cycle in-process and OPENAI_API_KEY is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("port") {
				c.cfg.Server.Port = port
			}
			if flags.Changed("static-dir") {
				c.cfg.Server.StaticDir = staticDir
			}
			if flags.Changed("enable-evolve") {
				c.cfg.Server.EnableEvolve = enableEvolve
			}
			if c.cfg.Server.EnableEvolve {
				if err := config.RequireAPIKey(c.cfg); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := evolution.NewService(ctx, c.cfg.PipelineConfig(),
				evolution.WithLogger(c.logger.Slog()))
			if err != nil {
				return err
			}
			return svc.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port and PORT)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "directory served for unmatched GET requests")
	cmd.Flags().BoolVar(&enableEvolve, "enable-evolve", false, "register POST /api/evolve")
	return cmd
}
