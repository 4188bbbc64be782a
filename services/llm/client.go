// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the client for the generation endpoint.
package llm

import "context"

// GenerationClient sends one prompt to a generation endpoint and returns
// the raw text of the first choice.
//
// Implementations do not retry and do not interpret the returned text.
// Every failure is reported as *datatypes.TransportError.
type GenerationClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationClientFunc adapts a function to GenerationClient.
type GenerationClientFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GenerationClientFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
