// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_NoneIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})

	require.NoError(t, err)
	assert.NotPanics(t, func() { shutdown(context.Background()) })
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: "zipkin"})

	assert.ErrorContains(t, err, "zipkin")
}

func TestSetup_StdoutWritesSpansOnShutdown(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	var buf bytes.Buffer

	shutdown, err := Setup(context.Background(), Config{Exporter: ExporterStdout, Writer: &buf, ServiceName: "seekin-test"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "evolution.cycle")
	span.End()
	shutdown(context.Background())

	assert.Contains(t, buf.String(), "evolution.cycle")
	assert.Contains(t, buf.String(), "seekin-test")
}
