// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// FileSink Tests
// ============================================================================

func TestFileSink_WritesDocument(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	sink := NewFileSink(dir)

	require.NoError(t, sink.Write(context.Background(), "evolution-history-1.json", []byte("[]")))

	data, err := os.ReadFile(filepath.Join(dir, "evolution-history-1.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Equal(t, "file", sink.Name())
}

func TestFileSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileSink(t.TempDir()).Write(ctx, "x.json", []byte("[]"))

	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// GCSSink Tests (no GCS connection required)
// ============================================================================

func TestNewGCSSink_RequiresBucket(t *testing.T) {
	_, err := NewGCSSink(context.Background(), GCSConfig{})

	assert.Error(t, err)
}

func TestNewGCSSink_NonExistentKeyPath(t *testing.T) {
	_, err := NewGCSSink(context.Background(), GCSConfig{
		Bucket:          "seekin-archive",
		CredentialsFile: "/nonexistent/path/to/key.json",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account key not found")
	assert.Contains(t, err.Error(), "/nonexistent/path/to/key.json")
}

func TestNewGCSSink_InvalidCredentialsFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "invalid_key.json")
	require.NoError(t, os.WriteFile(keyPath, []byte("not valid json"), 0o644))

	_, err := NewGCSSink(context.Background(), GCSConfig{Bucket: "b", CredentialsFile: keyPath})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create GCS storage client")
}

type fakeObjectWriter struct {
	buf      bytes.Buffer
	closeErr error
	closed   bool
}

func (w *fakeObjectWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fakeObjectWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newFakeGCSSink(w *fakeObjectWriter, objects *[]string) *GCSSink {
	return &GCSSink{
		bucket: "seekin-archive",
		prefix: "archive/",
		newWriter: func(_ context.Context, object string) io.WriteCloser {
			*objects = append(*objects, object)
			return w
		},
	}
}

func TestGCSSink_WritesObjectUnderPrefix(t *testing.T) {
	w := &fakeObjectWriter{}
	var objects []string
	sink := newFakeGCSSink(w, &objects)

	err := sink.Write(context.Background(), "evolution-history-42.json", []byte(`[{"step":1}]`))

	require.NoError(t, err)
	assert.Equal(t, []string{"archive/evolution-history-42.json"}, objects)
	assert.Equal(t, `[{"step":1}]`, w.buf.String())
	assert.True(t, w.closed)
	assert.Equal(t, "gcs", sink.Name())
}

func TestGCSSink_CloseErrorIsReturned(t *testing.T) {
	w := &fakeObjectWriter{closeErr: errors.New("precondition failed")}
	var objects []string
	sink := newFakeGCSSink(w, &objects)

	err := sink.Write(context.Background(), "evolution-history-42.json", []byte(`[]`))

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "gs://seekin-archive/archive/evolution-history-42.json"))
}

func TestGCSSink_CloseWithoutClient(t *testing.T) {
	assert.NoError(t, (&GCSSink{}).Close())
}
