// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/archive"
	"github.com/AleutianAI/SeekIn/services/evolution/orchestrator"
	"github.com/AleutianAI/SeekIn/services/evolution/prompt"
	"github.com/AleutianAI/SeekIn/services/evolution/tracing"
	"github.com/AleutianAI/SeekIn/services/llm"
)

// SeekInConfig is the on-disk configuration of the seekin CLI.
type SeekInConfig struct {
	// DataDir holds the state documents.
	DataDir string `yaml:"data_dir" validate:"required"`

	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Prompt     PromptConfig     `yaml:"prompt"`
	History    HistoryConfig    `yaml:"history"`
	Journal    JournalConfig    `yaml:"journal"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port         int    `yaml:"port" validate:"gte=1,lte=65535"`
	StaticDir    string `yaml:"static_dir,omitempty"`
	EnableEvolve bool   `yaml:"enable_evolve"`

	// WriteToken guards the POST endpoints. Normally set through
	// SEEKIN_WRITE_TOKEN.
	WriteToken string `yaml:"write_token,omitempty"`
}

// GenerationConfig configures the OpenAI-compatible endpoint. The API key
// normally comes from OPENAI_API_KEY.
type GenerationConfig struct {
	APIKey            string        `yaml:"api_key,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Model             string        `yaml:"model" validate:"required"`
	Temperature       float32       `yaml:"temperature" validate:"gt=0,lte=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"gte=1"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gte=0"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" validate:"gte=1,lte=10"`
	BaseDelay  time.Duration `yaml:"base_delay" validate:"gt=0"`
}

type PromptConfig struct {
	HistoryWindow int    `yaml:"history_window" validate:"gte=1"`
	Theme         string `yaml:"theme" validate:"required"`
	Language      string `yaml:"language" validate:"required"`
}

// HistoryConfig sets the retention cap and the optional GCS archive mirror.
type HistoryConfig struct {
	Cap                int    `yaml:"cap" validate:"gte=1"`
	GCSBucket          string `yaml:"gcs_bucket,omitempty"`
	GCSPrefix          string `yaml:"gcs_prefix,omitempty"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file,omitempty"`
}

// JournalConfig enables the BadgerDB cycle journal. Path defaults to
// "<data_dir>/journal".
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type TracingConfig struct {
	Exporter     string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
	Dir    string `yaml:"dir,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() SeekInConfig {
	retry := orchestrator.DefaultConfig()
	return SeekInConfig{
		DataDir: "data",
		Server: ServerConfig{
			Port:      3000,
			StaticDir: "public",
		},
		Generation: GenerationConfig{
			Model:          llm.DefaultModel,
			Temperature:    llm.DefaultTemperature,
			MaxTokens:      llm.DefaultMaxTokens,
			RequestTimeout: llm.DefaultRequestTimeout,
		},
		Retry: RetryConfig{
			MaxRetries: retry.MaxRetries,
			BaseDelay:  retry.BaseDelay,
		},
		Prompt: PromptConfig{
			HistoryWindow: prompt.DefaultHistoryWindow,
			Theme:         "knee",
			Language:      "Japanese",
		},
		History: HistoryConfig{
			Cap: archive.DefaultCap,
		},
		Tracing: TracingConfig{
			Exporter: tracing.ExporterNone,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}
