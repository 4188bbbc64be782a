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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/SeekIn/pkg/ux"
	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/journal"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
	"github.com/AleutianAI/SeekIn/services/evolution/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the retained evolution history, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := store.NewFileStore(c.cfg.DataDir, c.logger.Slog())
			history, err := st.LoadHistory(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(history) > limit {
				history = history[len(history)-limit:]
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(history)
			}
			printHistory(ux.NewPrinter(cmd.OutOrStdout()), history)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show only the newest N entries (0 shows all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entries as JSON")
	return cmd
}

func printHistory(out *ux.Printer, history []datatypes.HistoryEntry) {
	if len(history) == 0 {
		out.Muted("No history yet.")
		return
	}
	out.Title(fmt.Sprintf("Evolution history (%d entries)", len(history)))
	for _, h := range history {
		when := time.UnixMilli(h.Timestamp).UTC().Format(time.RFC3339)
		out.Boxed(
			fmt.Sprintf("step %d  %s", h.Step, when),
			fmt.Sprintf("A: %d cells, %s", len(h.EntityA.Cells), h.EntityA.Report.Reason),
			fmt.Sprintf("B: %d cells, %s", len(h.EntityB.Cells), h.EntityB.Report.Reason),
		)
	}
}

func newCyclesCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Print journaled evolution cycles, newest first",
		Long: `Reads the cycle journal (journal.enabled in the config). The journal is
locked by a running "seekin serve", so stop the server first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.JournalPath()
			if path == "" {
				return errors.New("the cycle journal is disabled; set journal.enabled in the config")
			}
			j, err := journal.Open(journal.Config{Path: path, Logger: c.logger.Slog()})
			if err != nil {
				return err
			}
			defer j.Close()

			records, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printCycles(ux.NewPrinter(cmd.OutOrStdout()), records)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of cycles to show")
	return cmd
}

func printCycles(out *ux.Printer, records []journal.CycleRecord) {
	if len(records) == 0 {
		out.Muted("No cycles journaled.")
		return
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %s  %s  %s", r.StartedAt.UTC().Format(time.RFC3339), r.RunID,
			r.Status, r.Duration().Round(time.Millisecond))
		switch r.Status {
		case observability.StatusSuccess:
			out.Success("%s  step %d", line, r.Step)
		default:
			out.Error("%s  %s", line, r.Error)
		}
	}
}
