// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/SeekIn/services/evolution/store"
)

// =============================================================================
// File Sink
// =============================================================================

// FileSink writes archive documents into a local directory, normally
// <data>/archive.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing into dir. The directory is created on
// first write.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Dir returns the archive directory.
func (s *FileSink) Dir() string { return s.dir }

// Write implements Sink.
func (s *FileSink) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.WriteFileAtomic(filepath.Join(s.dir, name), data)
}

// =============================================================================
// GCS Sink
// =============================================================================

// GCSConfig configures a GCSSink.
type GCSConfig struct {
	// Bucket is the destination bucket. Required.
	Bucket string

	// Prefix is prepended to document names. Default: "archive/"
	Prefix string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// GCSSink mirrors archive documents to a Cloud Storage bucket.
type GCSSink struct {
	client    *storage.Client
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

// NewGCSSink creates a Cloud Storage client for cfg.
//
// # Outputs
//
//   - *GCSSink: Ready sink. Call Close when done.
//   - error: Non-nil if the bucket is empty, the key file is missing or
//     the client cannot be created.
func NewGCSSink(ctx context.Context, cfg GCSConfig) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs archive bucket is not set")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = store.ArchiveDir + "/"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	s := &GCSSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
	s.newWriter = func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(s.bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		w.CacheControl = "no-cache, no-store, must-revalidate"
		return w
	}
	return s, nil
}

// Name implements Sink.
func (s *GCSSink) Name() string { return "gcs" }

// ObjectName returns the object path for a document name.
func (s *GCSSink) ObjectName(name string) string {
	return path.Join(s.prefix, name)
}

// Write implements Sink. The object is only committed when the writer
// closes without error.
func (s *GCSSink) Write(ctx context.Context, name string, data []byte) error {
	object := s.ObjectName(name)
	w := s.newWriter(ctx, object)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write GCS object gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for gs://%s/%s: %w", s.bucket, object, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
