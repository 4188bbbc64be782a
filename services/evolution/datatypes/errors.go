// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// ErrRetriesExhausted is returned by the orchestrator when every attempt
// failed. The last attempt's cause is wrapped alongside it.
var ErrRetriesExhausted = errors.New("evolution retries exhausted")

// TransportError reports a failed call to the generation endpoint.
//
// # Description
//
// Covers non-2xx responses, timeouts, connection failures and responses
// without any choice. StatusCode is 0 when no HTTP response was received.
//
// # Example
//
//	var tErr *TransportError
//	if errors.As(err, &tErr) && tErr.StatusCode == 429 {
//	    // rate limited
//	}
type TransportError struct {
	// StatusCode is the HTTP status of the response, 0 if unknown.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error returns a message that includes the HTTP status when known.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation endpoint failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation endpoint failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError reports that no JSON object could be located in, or decoded
// from, the generated text.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError reports a decoded document that lacks required structure
// after the repair pass.
//
// # Fields
//
//   - Path: Location of the offending value, e.g. "entityB.report".
//   - Reason: What is wrong with it.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

// PersistenceError reports a failed document read or write.
//
// # Fields
//
//   - Op: "read", "write", "decode", "encode" or "mkdir".
//   - Path: The document path.
//   - Err: The underlying cause.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
