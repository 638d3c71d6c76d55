// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Package forwarder implements the fetch-and-forward orchestrator of
// spec.md §4.E: drive one poll cycle (AT list → decode → reassemble →
// filter → emit) and the Poller task of spec.md §5 that repeats it on a
// ticker.
package forwarder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kogeler/smsbridge/internal/atsession"
	"github.com/kogeler/smsbridge/internal/diag"
	"github.com/kogeler/smsbridge/internal/exclusion"
	"github.com/kogeler/smsbridge/internal/pdu"
	"github.com/kogeler/smsbridge/internal/sink"
	"github.com/kogeler/smsbridge/internal/sms"
)

// messageTemplate is the rendering format spec.md §4.E step 6 specifies.
const messageTemplate = "<<<From %s\n%s\n%s"

// SessionOpener opens a fresh AT session for one cycle. The serial
// device is owned by the session for the duration of the cycle and
// released at cycle end (spec.md §5): re-opening each cycle is cheap and
// avoids stale-buffer bugs.
type SessionOpener func() (*atsession.Session, io.Closer, error)

// Orchestrator drives repeated poll cycles.
type Orchestrator struct {
	Open            SessionOpener
	Exclusions      exclusion.Set
	Sink            sink.Sink
	Notifier        *diag.Notifier
	NetworkRegGrace time.Duration
	ListState       int // AT+CMGL state; 0 = unread, per spec.md §4.E step 1
	DeleteFlag      int
	Log             *slog.Logger

	sessionStart time.Time
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// RunCycle executes one full poll cycle: open, diagnose, list, decode,
// reassemble, filter, and deliver. A session-level failure (AtTimeout,
// AtError, a diagnostic failure) aborts the cycle cleanly with no
// partial state retained; per-record decode or delivery failures are
// logged and skipped, never aborting the cycle (spec.md §7).
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	sess, closer, err := o.Open()
	if err != nil {
		return fmt.Errorf("forwarder: opening session: %w", err)
	}
	defer closer.Close()

	o.sessionStart = time.Now()
	if diagErr := diag.Run(ctx, sess, o.sessionStart, o.NetworkRegGrace, o.log()); diagErr != nil {
		if o.Notifier != nil {
			o.Notifier.NotifyError(ctx, diagErr)
		}
		return diagErr
	}
	if o.Notifier != nil {
		o.Notifier.NotifyRecovery(ctx)
	}

	body, err := sess.ListSMSPDU(o.ListState)
	if err != nil {
		return fmt.Errorf("forwarder: listing messages: %w", err)
	}

	indices, hexLines := parseCMGLResponse(body)

	var records []pdu.Record
	for i, hexLine := range hexLines {
		rec, err := pdu.ParsePDU(hexLine)
		if err != nil {
			o.log().Warn("skipping undecodable pdu", "error", err, "index", indices[i])
			continue
		}
		records = append(records, rec)
	}

	results := sms.BuildList(records)

	delivered := 0
	for _, rec := range results {
		if o.Exclusions != nil && o.Exclusions.Contains(rec.FromNumber) {
			o.log().Debug("dropping excluded sender", "from", rec.FromNumber)
			continue
		}
		text := fmt.Sprintf(messageTemplate, rec.FromNumber, rec.Timestamp, rec.Message)
		if err := o.Sink.Deliver(ctx, text); err != nil {
			o.log().Error("sink delivery failed", "error", err, "from", rec.FromNumber)
			continue
		}
		delivered++
	}

	for _, idx := range indices {
		if err := sess.DeleteMessage(idx, o.DeleteFlag); err != nil {
			o.log().Error("failed to delete sms", "error", err, "index", idx)
		}
	}

	o.log().Info("poll cycle complete", "records", len(records), "delivered", delivered)
	return nil
}

// parseCMGLResponse implements spec.md §4.E step 2: skip blanks, stop at
// a line containing "OK", and pair each "+CMGL:" header with the next
// non-blank line as its PDU hex string.
func parseCMGLResponse(body string) (indices []int, hexLines []string) {
	lines := strings.Split(body, "\n")
	expectPDU := false
	lastIndex := -1

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.Contains(line, "OK") {
			break
		}
		if strings.HasPrefix(line, "+CMGL:") {
			expectPDU = true
			lastIndex = parseCMGLIndex(line)
			continue
		}
		if expectPDU {
			hexLines = append(hexLines, line)
			indices = append(indices, lastIndex)
			expectPDU = false
		}
	}
	return indices, hexLines
}

func parseCMGLIndex(line string) int {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return -1
	}
	fields := strings.Split(parts[1], ",")
	if len(fields) == 0 {
		return -1
	}
	var idx int
	if _, err := fmt.Sscanf(strings.TrimSpace(fields[0]), "%d", &idx); err != nil {
		return -1
	}
	return idx
}

// RunPoller runs the Poller task of spec.md §5: one cycle immediately,
// then one cycle on each tick of interval, until ctx is cancelled. Cycles
// run on this goroutine, so a cycle runs to completion before the next
// one starts; within a cycle it blocks on serial I/O, Sink.Deliver, and
// the fixed waits of diag.Run and the AT session's settle delay.
func RunPoller(ctx context.Context, o *Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := o.RunCycle(ctx); err != nil {
		o.log().Error("poll cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.RunCycle(ctx); err != nil {
				o.log().Error("poll cycle failed", "error", err)
			}
		}
	}
}
