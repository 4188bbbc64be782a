// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command seekin runs and serves the evolution of two lifeforms.
//
// Usage:
//
//	seekin evolve              # one cycle; run from cron or a CI schedule
//	seekin serve               # HTTP API, static files and live state
//	seekin history --limit 5   # print the retained history
//	seekin cycles              # print journaled cycles
//	seekin config init         # write a default seekin.yaml
package main

import (
	"os"

	"github.com/AleutianAI/SeekIn/pkg/ux"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ux.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}
