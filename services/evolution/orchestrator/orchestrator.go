// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives one evolution step: build the prompt, call
// the generation endpoint, validate the response and retry with
// exponential backoff until a valid state is produced or attempts run out.
//
// # State Machine
//
//	Idle ──build prompt──► Attempting(0)
//	Attempting(n) ──valid state──────────────────► Success
//	Attempting(n) ──failure, n+1 < MaxRetries────► sleep BaseDelay·2ⁿ ► Attempting(n+1)
//	Attempting(n) ──failure, n+1 = MaxRetries────► ExhaustedFailure
//
// A failure is a transport error or a response the validator rejects. The
// prompt is built once and reused for every attempt.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
	"github.com/AleutianAI/SeekIn/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("seekin.orchestrator")

// ErrInvalidResponse marks an attempt whose text the validator rejected.
var ErrInvalidResponse = errors.New("generated response failed validation")

// =============================================================================
// Configuration
// =============================================================================

// Config holds the retry policy.
type Config struct {
	// MaxRetries is the total number of attempts. Default: 3
	MaxRetries int

	// BaseDelay is the wait after the first failed attempt; it doubles
	// after every further failure. No jitter is applied. Default: 1s
	BaseDelay time.Duration
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
}

// Delay returns the wait following failed attempt n (0-based).
func (c Config) Delay(n int) time.Duration {
	return c.BaseDelay * time.Duration(1<<n)
}

// =============================================================================
// Collaborators
// =============================================================================

// PromptBuilder renders the prompt for one step.
type PromptBuilder interface {
	Build(current datatypes.EvolutionState, history []datatypes.HistoryEntry) string
}

// ResponseValidator turns raw text into a state, or nil.
type ResponseValidator interface {
	Validate(raw string) *datatypes.EvolutionState
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs the retry state machine.
//
// # Thread Safety
//
// Orchestrator holds no per-run state and may be shared, but callers are
// expected to run at most one step at a time against the same documents.
type Orchestrator struct {
	client    llm.GenerationClient
	builder   PromptBuilder
	validator ResponseValidator
	cfg       Config
	sleep     Sleeper
	logger    *slog.Logger
	metrics   *observability.EvolutionMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the backoff sleep. Tests use it to record delays.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records attempts on m.
func WithMetrics(m *observability.EvolutionMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator. Zero fields of cfg take their defaults.
func New(client llm.GenerationClient, builder PromptBuilder, validator ResponseValidator, cfg Config, opts ...Option) *Orchestrator {
	applyConfigDefaults(&cfg)
	o := &Orchestrator{
		client:    client,
		builder:   builder,
		validator: validator,
		cfg:       cfg,
		sleep:     ContextSleep,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective retry policy.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

type phase int

const (
	phaseIdle phase = iota
	phaseAttempting
	phaseSuccess
	phaseExhausted
)

// Generate produces the next evolution state.
//
// # Description
//
// Runs the state machine described in the package documentation.
//
// # Inputs
//
//   - ctx: Cancels the run, including an in-progress backoff sleep.
//   - current: The state to evolve from.
//   - history: The retained history, oldest first.
//
// # Outputs
//
//   - *datatypes.EvolutionState: The validated next state.
//   - error: nil on success; an error matching datatypes.ErrRetriesExhausted
//     (and wrapping the last attempt's cause) when every attempt failed;
//     ctx.Err() when the context ended first.
//
// # Example
//
//	next, err := orch.Generate(ctx, current, history)
//	if errors.Is(err, datatypes.ErrRetriesExhausted) {
//	    // leave documents untouched
//	}
func (o *Orchestrator) Generate(ctx context.Context, current datatypes.EvolutionState, history []datatypes.HistoryEntry) (*datatypes.EvolutionState, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Generate",
		trace.WithAttributes(
			attribute.Int("evolution.history_len", len(history)),
			attribute.Int("evolution.max_retries", o.cfg.MaxRetries),
		),
	)
	defer span.End()

	var (
		prompt  string
		attempt int
		result  *datatypes.EvolutionState
		lastErr error
	)

	for p := phaseIdle; ; {
		switch p {
		case phaseIdle:
			prompt = o.builder.Build(current, history)
			p = phaseAttempting

		case phaseAttempting:
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "context canceled")
				return nil, err
			}

			result, lastErr = o.attempt(ctx, prompt, attempt)
			if result != nil {
				p = phaseSuccess
				continue
			}
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "context canceled")
				return nil, err
			}
			if attempt+1 >= o.cfg.MaxRetries {
				p = phaseExhausted
				continue
			}

			delay := o.cfg.Delay(attempt)
			o.logger.Warn("Evolution attempt failed, retrying",
				"attempt", attempt+1,
				"max_retries", o.cfg.MaxRetries,
				"delay", delay,
				"error", lastErr)
			if err := o.sleep(ctx, delay); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "context canceled")
				return nil, err
			}
			attempt++

		case phaseSuccess:
			span.SetAttributes(attribute.Int("evolution.attempts", attempt+1))
			o.logger.Info("Evolution step generated", "attempts", attempt+1)
			return result, nil

		case phaseExhausted:
			err := fmt.Errorf("%w after %d attempts: %w", datatypes.ErrRetriesExhausted, attempt+1, lastErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, "retries exhausted")
			o.logger.Error("Evolution failed", "attempts", attempt+1, "error", lastErr)
			return nil, err
		}
	}
}

// attempt performs one generate+validate round.
func (o *Orchestrator) attempt(ctx context.Context, prompt string, n int) (*datatypes.EvolutionState, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.attempt",
		trace.WithAttributes(attribute.Int("evolution.attempt", n+1)),
	)
	defer span.End()
	start := time.Now()

	raw, err := o.client.Generate(ctx, prompt)
	if err != nil {
		o.metrics.RecordAttempt(observability.OutcomeTransportError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, err
	}

	state := o.validator.Validate(raw)
	if state == nil {
		o.metrics.RecordAttempt(observability.OutcomeInvalidResponse, time.Since(start))
		span.SetStatus(codes.Error, ErrInvalidResponse.Error())
		return nil, ErrInvalidResponse
	}

	o.metrics.RecordAttempt(observability.OutcomeSuccess, time.Since(start))
	return state, nil
}
