// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the seekin CLI configuration.
//
// Precedence, lowest first: DefaultConfig, the YAML file, environment
// variables, command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AleutianAI/SeekIn/services/evolution"
	"github.com/AleutianAI/SeekIn/services/evolution/archive"
	"github.com/AleutianAI/SeekIn/services/evolution/orchestrator"
	"github.com/AleutianAI/SeekIn/services/evolution/prompt"
	"github.com/AleutianAI/SeekIn/services/evolution/tracing"
	"github.com/AleutianAI/SeekIn/services/llm"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing default
// file is not an error.
const DefaultPath = "seekin.yaml"

// Environment variables that override the file.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvModel   = "OPENAI_MODEL"
	EnvBaseURL = "OPENAI_BASE_URL"
	EnvDataDir = "SEEKIN_DATA_DIR"
	EnvPort    = "PORT"
	EnvToken   = "SEEKIN_WRITE_TOKEN"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured.
var ErrMissingAPIKey = errors.New(EnvAPIKey + " is not set")

var validate = validator.New()

// Load reads path over the defaults and applies environment overrides.
//
// # Inputs
//
//   - path: YAML file. Empty means DefaultPath, which may be absent.
//
// # Outputs
//
//   - SeekInConfig: The merged configuration. Not yet validated so flags
//     can still be applied.
//   - error: Non-nil if the file cannot be read or parsed, or PORT is not
//     a number.
func Load(path string) (SeekInConfig, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *SeekInConfig, getenv func(string) string) error {
	if v := getenv(EnvAPIKey); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := getenv(EnvModel); v != "" {
		cfg.Generation.Model = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := getenv(EnvToken); v != "" {
		cfg.Server.WriteToken = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg SeekInConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireAPIKey fails when no generation API key is configured.
func RequireAPIKey(cfg SeekInConfig) error {
	if cfg.Generation.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// WriteDefault writes DefaultConfig to path, creating its directory.
// An existing file is left untouched and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// JournalPath returns the journal directory, or "" when disabled.
func (c SeekInConfig) JournalPath() string {
	if !c.Journal.Enabled {
		return ""
	}
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.DataDir, "journal")
}

// PipelineConfig converts c to the pipeline's configuration.
func (c SeekInConfig) PipelineConfig() evolution.Config {
	cfg := evolution.Config{
		Port:         c.Server.Port,
		DataDir:      c.DataDir,
		StaticDir:    c.Server.StaticDir,
		EnableEvolve: c.Server.EnableEvolve,
		WriteToken:   c.Server.WriteToken,
		HistoryCap:   c.History.Cap,
		Retry: orchestrator.Config{
			MaxRetries: c.Retry.MaxRetries,
			BaseDelay:  c.Retry.BaseDelay,
		},
		Prompt: prompt.Config{
			HistoryWindow: c.Prompt.HistoryWindow,
			Theme:         c.Prompt.Theme,
			Language:      c.Prompt.Language,
		},
		LLM: llm.OpenAIConfig{
			APIKey:            c.Generation.APIKey,
			BaseURL:           c.Generation.BaseURL,
			Model:             c.Generation.Model,
			Temperature:       c.Generation.Temperature,
			MaxTokens:         c.Generation.MaxTokens,
			RequestTimeout:    c.Generation.RequestTimeout,
			RequestsPerMinute: c.Generation.RequestsPerMinute,
		},
		JournalPath: c.JournalPath(),
		Tracing: tracing.Config{
			Exporter:     c.Tracing.Exporter,
			OTLPEndpoint: c.Tracing.OTLPEndpoint,
			ServiceName:  c.Tracing.ServiceName,
		},
	}
	if c.History.GCSBucket != "" {
		cfg.GCS = &archive.GCSConfig{
			Bucket:          c.History.GCSBucket,
			Prefix:          c.History.GCSPrefix,
			CredentialsFile: c.History.GCSCredentialsFile,
		}
	}
	return cfg
}
