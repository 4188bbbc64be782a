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
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/AleutianAI/SeekIn/cmd/seekin/config"
	"github.com/AleutianAI/SeekIn/pkg/ux"
	"github.com/AleutianAI/SeekIn/services/evolution"
	"github.com/AleutianAI/SeekIn/services/evolution/cycle"
	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/spf13/cobra"
)

func newEvolveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "evolve",
		Short: "Run one evolution cycle and persist the result",
		Long: `Loads the current state and history, asks the model for the next state,
then saves the new state and appends the previous one to the history.
Nothing is written when every attempt fails; the command exits with status 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RequireAPIKey(c.cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runEvolve(ctx, c, ux.NewPrinter(cmd.OutOrStdout()))
		},
	}
}

func runEvolve(ctx context.Context, c *cli, out *ux.Printer, opts ...evolution.Option) error {
	opts = append([]evolution.Option{evolution.WithLogger(c.logger.Slog())}, opts...)
	p, err := evolution.NewPipeline(ctx, c.cfg.PipelineConfig(), opts...)
	if err != nil {
		return err
	}
	defer p.Close(context.Background())

	result, err := p.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, datatypes.ErrRetriesExhausted) {
			return fmt.Errorf("evolution failed, documents left unchanged: %w", err)
		}
		return fmt.Errorf("evolution cycle failed: %w", err)
	}
	printResult(out, result)
	return nil
}

func printResult(out *ux.Printer, r cycle.Result) {
	out.Success("Step %d recorded (run %s)", r.Entry.Step, r.RunID)
	out.Entity(0, "entityA")
	printEntity(out, r.State.EntityA)
	out.Entity(1, "entityB")
	printEntity(out, r.State.EntityB)
	out.Field("history", strconv.Itoa(r.HistoryLen)+" entries")
	if r.Archived > 0 {
		out.Warning("%d entries moved to the archive", r.Archived)
	}
}

func printEntity(out *ux.Printer, e datatypes.Entity) {
	out.Field("cells", strconv.Itoa(len(e.Cells)))
	out.Field("appearance", e.Report.Appearance)
	out.Field("reason", e.Report.Reason)
	out.Field("thought", e.Report.Thought)
}
