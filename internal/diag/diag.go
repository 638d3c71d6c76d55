// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Package diag adapts the teacher's modem diagnostics (SIM status, signal
// quality, network registration) to the §4.D AT session, and notifies a
// Sink when the modem's health state changes. It is additive: it never
// changes the decode/reassembly/filter/emit semantics of spec.md §4, and
// a diagnostic failure only ever aborts the current cycle, never decodes
// or forwards a record.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kogeler/smsbridge/internal/atsession"
	"github.com/kogeler/smsbridge/internal/sink"
)

// ErrorType classifies a diagnostic failure.
type ErrorType int

const (
	ErrTypeNone ErrorType = iota
	ErrTypeSerialPort
	ErrTypeModemNotResponding
	ErrTypeSimNotDetected
	ErrTypeSimPinRequired
	ErrTypeSimPukLocked
	ErrTypeNetworkDenied
	ErrTypeNetworkNotRegistered
	ErrTypeNoSignal
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeSerialPort:
		return "Serial Port Error"
	case ErrTypeModemNotResponding:
		return "Modem Not Responding"
	case ErrTypeSimNotDetected:
		return "SIM Not Detected"
	case ErrTypeSimPinRequired:
		return "SIM PIN Required"
	case ErrTypeSimPukLocked:
		return "SIM PUK Locked"
	case ErrTypeNetworkDenied:
		return "Network Denied"
	case ErrTypeNetworkNotRegistered:
		return "Network Not Registered"
	case ErrTypeNoSignal:
		return "No Signal"
	default:
		return "Unknown"
	}
}

// Error is a diagnostic failure: the modem is unreachable, the SIM is
// unusable, or the device is not registered on the network. It aborts
// the current poll cycle (spec.md §7: "abort cycle"), same policy as
// AtTimeout/AtError.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Run performs the teacher's modem diagnostics sequence: AT ping, SIM
// status (with retries, SIM init can take a few seconds), signal quality,
// network registration, waiting up to networkGrace for registration to
// settle before reporting ErrTypeNetworkNotRegistered.
func Run(ctx context.Context, sess *atsession.Session, sessionStart time.Time, networkGrace time.Duration, log *slog.Logger) *Error {
	if log == nil {
		log = slog.Default()
	}

	if _, err := sess.Command("AT"); err != nil {
		return newError(ErrTypeModemNotResponding, "modem not responding to AT commands: %v", err)
	}
	sess.Command("ATE0")

	var simStatus string
	var simErr error
	var simReady bool

	for attempt := 1; attempt <= 5; attempt++ {
		simStatus, simErr = sess.Command("AT+CPIN?")
		if simErr == nil {
			break
		}
		if attempt < 5 {
			log.Debug("sim not ready yet, waiting", "attempt", attempt)
			time.Sleep(2 * time.Second)
		}
	}
	if simErr != nil {
		if _, ccidErr := sess.Command("AT+CCID"); ccidErr != nil {
			return newError(ErrTypeSimNotDetected, "sim card not physically detected: cpin=%v ccid=%v", simErr, ccidErr)
		}
		return newError(ErrTypeSimNotDetected, "sim card detected but not ready: %v", simErr)
	}

	switch {
	case !strings.Contains(simStatus, "+CPIN:"):
		return newError(ErrTypeSimNotDetected, "invalid AT+CPIN? response: %s", simStatus)
	case strings.Contains(simStatus, "READY") && !strings.Contains(simStatus, "NOT READY"):
		simReady = true
	case strings.Contains(simStatus, "SIM PIN"):
		return newError(ErrTypeSimPinRequired, "sim card requires pin code")
	case strings.Contains(simStatus, "SIM PUK"):
		return newError(ErrTypeSimPukLocked, "sim card is puk locked")
	case strings.Contains(simStatus, "NOT INSERTED"):
		return newError(ErrTypeSimNotDetected, "no sim card inserted")
	case strings.Contains(simStatus, "NOT READY"):
		return newError(ErrTypeSimNotDetected, "sim card not ready (still initializing)")
	default:
		return newError(ErrTypeSimNotDetected, "unknown sim status: %s", simStatus)
	}

	if resp, err := sess.Command("AT+CSQ"); err == nil {
		if rssi := parseCSQ(resp); rssi == "99" {
			return newError(ErrTypeNoSignal, "no signal detected (csq=%s)", rssi)
		}
	} else {
		log.Warn("could not check signal quality", "error", err)
	}

	networkStat, registered, cregChecked, diagErr := checkNetwork(sess, log)
	if diagErr != nil {
		return diagErr
	}

	waited := false
	for simReady && cregChecked && !registered && networkGrace > 0 {
		elapsed := time.Since(sessionStart)
		if elapsed >= networkGrace || (networkStat != "0" && networkStat != "2" && networkStat != "4") {
			break
		}
		remaining := networkGrace - elapsed
		wait := 5 * time.Second
		if remaining < wait {
			wait = remaining
		}
		if !waited {
			log.Info("waiting for network registration", "grace", networkGrace, "elapsed", elapsed)
			waited = true
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		networkStat, registered, cregChecked, diagErr = checkNetwork(sess, log)
		if diagErr != nil {
			return diagErr
		}
	}

	if simReady && cregChecked && !registered {
		if networkStat == "" {
			networkStat = "unknown"
		}
		return newError(ErrTypeNetworkNotRegistered, "not registered on network (creg=%s)", networkStat)
	}

	return nil
}

func parseCSQ(resp string) string {
	for _, line := range strings.Split(resp, "\n") {
		if !strings.HasPrefix(line, "+CSQ:") {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(line, "+CSQ:"), ",")
		if len(parts) >= 1 {
			return strings.TrimSpace(parts[0])
		}
	}
	return ""
}

// checkNetwork issues AT+CREG? and reports (stat, registered, checked, err).
func checkNetwork(sess *atsession.Session, log *slog.Logger) (string, bool, bool, *Error) {
	resp, err := sess.Command("AT+CREG?")
	if err != nil {
		log.Warn("could not check network registration", "error", err)
		return "", false, false, nil
	}
	for _, line := range strings.Split(resp, "\n") {
		if !strings.HasPrefix(line, "+CREG:") {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(line, "+CREG:"), ",")
		if len(parts) < 2 {
			continue
		}
		stat := strings.TrimSpace(parts[1])
		switch stat {
		case "1", "5":
			return stat, true, true, nil
		case "3":
			return stat, false, true, newError(ErrTypeNetworkDenied, "network operator denied registration")
		default:
			return stat, false, true, nil
		}
	}
	return "", false, false, nil
}

// Notifier sends a Sink notification whenever the diagnostic error type
// changes, deduplicating repeats of the same error and sending a
// recovery notice once the modem heals (grounded on the teacher's
// ErrorNotifier).
type Notifier struct {
	mu       sync.Mutex
	lastType ErrorType
	sink     sink.Sink
	hostname string
}

// NewNotifier builds a Notifier delivering through s.
func NewNotifier(s sink.Sink, hostname string) *Notifier {
	return &Notifier{sink: s, lastType: ErrTypeNone, hostname: hostname}
}

// NotifyError delivers an alert if err's type differs from the last
// notified type, returning true if a notification was sent.
func (n *Notifier) NotifyError(ctx context.Context, err *Error) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err.Type == n.lastType {
		return false
	}
	msg := fmt.Sprintf("<b>SMS Gateway Alert</b>\n\n<b>Host:</b> <code>%s</code>\n<b>Error:</b> %s\n<b>Details:</b> %s",
		n.hostname, err.Type, err.Message)
	if sendErr := n.sink.Deliver(ctx, msg); sendErr != nil {
		slog.Error("failed to send diagnostic alert", "error", sendErr)
		return false
	}
	n.lastType = err.Type
	return true
}

// NotifyRecovery delivers a recovery notice if there was a previous
// error, returning true if one was sent.
func (n *Notifier) NotifyRecovery(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lastType == ErrTypeNone {
		return false
	}
	prev := n.lastType
	msg := fmt.Sprintf("<b>SMS Gateway Recovered</b>\n\n<b>Host:</b> <code>%s</code>\n<b>Previous error:</b> %s", n.hostname, prev)
	if sendErr := n.sink.Deliver(ctx, msg); sendErr != nil {
		slog.Error("failed to send recovery notice", "error", sendErr)
		return false
	}
	n.lastType = ErrTypeNone
	return true
}

// HasError reports whether the notifier currently believes the modem is
// in a faulted state.
func (n *Notifier) HasError() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastType != ErrTypeNone
}
