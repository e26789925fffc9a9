// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/reportbot/lib/clock"
	"github.com/bureau-foundation/reportbot/lib/delivery"
	"github.com/bureau-foundation/reportbot/lib/eventreport"
	"github.com/bureau-foundation/reportbot/lib/statefile"
	"github.com/bureau-foundation/reportbot/lib/synapsedb"
)

// Deliverer sends one formatted report. *delivery.Deliverer implements
// it.
type Deliverer interface {
	Deliver(ctx context.Context, reportID int64, message eventreport.Message) error
}

// CursorStore holds the id of the last delivered report.
// *statefile.Tracker implements it.
type CursorStore interface {
	Cursor() int64
	Advance(id int64) error
}

// MalformedPolicy decides what happens to a report whose event cannot
// be formatted.
type MalformedPolicy string

const (
	// MalformedBlock stops at the report and tries it again every
	// cycle, holding back every later report until an operator
	// intervenes.
	MalformedBlock MalformedPolicy = "block"

	// MalformedSkip logs the report and moves the cursor past it.
	MalformedSkip MalformedPolicy = "skip"
)

// ParseMalformedPolicy parses a configured policy. Empty means block.
func ParseMalformedPolicy(value string) (MalformedPolicy, error) {
	switch MalformedPolicy(value) {
	case "", MalformedBlock:
		return MalformedBlock, nil
	case MalformedSkip:
		return MalformedSkip, nil
	default:
		return "", fmt.Errorf("relay: unknown malformed report policy %q (want %q or %q)", value, MalformedBlock, MalformedSkip)
	}
}

// DefaultPollInterval is the wait between cycles when none is
// configured.
const DefaultPollInterval = 300 * time.Second

// Config holds the relay's collaborators.
type Config struct {
	Source    synapsedb.Source
	Deliverer Deliverer
	Cursor    CursorStore

	// PollInterval is the wait between the end of one cycle and the
	// start of the next. Zero means DefaultPollInterval.
	PollInterval time.Duration

	// MalformedPolicy defaults to MalformedBlock.
	MalformedPolicy MalformedPolicy

	// Clock is used for the poll wait. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Relay runs delivery cycles. Not safe for concurrent use.
type Relay struct {
	source          synapsedb.Source
	deliverer       Deliverer
	cursor          CursorStore
	pollInterval    time.Duration
	malformedPolicy MalformedPolicy
	clock           clock.Clock
	logger          *slog.Logger
}

// New validates config and returns a Relay.
func New(config Config) (*Relay, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("relay: Source is required")
	}
	if config.Deliverer == nil {
		return nil, fmt.Errorf("relay: Deliverer is required")
	}
	if config.Cursor == nil {
		return nil, fmt.Errorf("relay: Cursor is required")
	}
	if config.PollInterval < 0 {
		return nil, fmt.Errorf("relay: PollInterval must not be negative")
	}
	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	policy, err := ParseMalformedPolicy(string(config.MalformedPolicy))
	if err != nil {
		return nil, err
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		source:          config.Source,
		deliverer:       config.Deliverer,
		cursor:          config.Cursor,
		pollInterval:    pollInterval,
		malformedPolicy: policy,
		clock:           clk,
		logger:          logger,
	}, nil
}

// IsFatal reports whether err should stop the relay rather than be
// retried on the next cycle.
func IsFatal(err error) bool {
	return errors.Is(err, delivery.ErrAuthFailed) ||
		errors.Is(err, statefile.ErrWrite) ||
		errors.Is(err, statefile.ErrRead) ||
		errors.Is(err, statefile.ErrCorrupt)
}

// cycleStats is the per-cycle summary.
type cycleStats struct {
	fetched   int
	delivered int
	skipped   int
}

// RunCycle performs one fetch-format-deliver pass. It returns an error
// only when the relay must stop (see IsFatal); every other failure is
// logged and ends the cycle early.
func (r *Relay) RunCycle(ctx context.Context) error {
	start := r.clock.Now()
	cursor := r.cursor.Cursor()

	reports, err := r.source.FetchSince(ctx, cursor)
	if err != nil {
		r.logger.Warn("report source unavailable", "cursor", cursor, "error", err)
		return nil
	}

	stats := cycleStats{fetched: len(reports)}
	defer func() {
		level := slog.LevelDebug
		if stats.fetched > 0 {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "cycle complete",
			"fetched", stats.fetched,
			"delivered", stats.delivered,
			"skipped", stats.skipped,
			"cursor", r.cursor.Cursor(),
			"duration", r.clock.Now().Sub(start),
		)
	}()

	for _, report := range reports {
		if report.ID <= cursor {
			r.logger.Error("report source returned a report at or before the cursor",
				"report_id", report.ID,
				"cursor", cursor,
			)
			return nil
		}

		message, err := eventreport.Format(report)
		if err != nil {
			if r.malformedPolicy == MalformedSkip && errors.Is(err, eventreport.ErrMalformed) {
				r.logger.Error("skipping malformed report", "report_id", report.ID, "room_id", report.RoomID, "error", err)
				if err := r.cursor.Advance(report.ID); err != nil {
					return fmt.Errorf("relay: skipping report %d: %w", report.ID, err)
				}
				cursor = report.ID
				stats.skipped++
				continue
			}
			r.logger.Error("cannot format report, holding cursor",
				"report_id", report.ID,
				"room_id", report.RoomID,
				"error", err,
			)
			return nil
		}

		if err := r.deliverer.Deliver(ctx, report.ID, message); err != nil {
			if IsFatal(err) {
				return fmt.Errorf("relay: delivering report %d: %w", report.ID, err)
			}
			r.logger.Error("delivery failed, will retry next cycle", "report_id", report.ID, "error", err)
			return nil
		}

		if err := r.cursor.Advance(report.ID); err != nil {
			return fmt.Errorf("relay: recording delivery of report %d: %w", report.ID, err)
		}
		cursor = report.ID
		stats.delivered++
		r.logger.Info("report delivered", "report_id", report.ID, "room_id", report.RoomID)
	}
	return nil
}

// Run runs a cycle immediately and then once per poll interval until
// ctx is done or a cycle fails fatally. A cycle in progress is never
// interrupted by ctx; cancellation ends the wait between cycles, and
// Run returns nil.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started",
		"cursor", r.cursor.Cursor(),
		"poll_interval", r.pollInterval,
		"malformed_policy", r.malformedPolicy,
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.RunCycle(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping", "cursor", r.cursor.Cursor())
			return nil
		case <-r.clock.After(r.pollInterval):
		}
	}
}
