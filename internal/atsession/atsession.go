// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Package atsession implements the 3GPP TS 27.005 AT-command session layer
// that drives the modem: framing commands, reading line-oriented responses
// until a terminator, and the small set of SMS-storage operations the
// orchestrator needs (list, delete, preferred storage).
package atsession

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Sentinel errors. AtTimeout and AtError abort the current poll cycle per
// spec.md §7; they are never returned for an individual PDU decode
// failure.
var (
	ErrTimeout = errors.New("atsession: timeout waiting for response")
	ErrModem   = errors.New("atsession: modem returned an error response")
	ErrClosed  = errors.New("atsession: session is closed")
)

// DefaultBaud and DefaultTimeout match spec.md §4.D: 460800 baud, 3s read
// timeout, 8N1 (the framing the underlying serial.Config always uses).
const (
	DefaultBaud    = 460800
	DefaultTimeout = 3 * time.Second

	settleDelay = 500 * time.Millisecond
)

// Port is the transport a Session drives. *tarm/serial.Port satisfies it;
// tests use an in-memory io.ReadWriter fake instead.
type Port io.ReadWriter

// Session is one open AT command session over a serial port. It is not
// safe for concurrent use by multiple goroutines; the orchestrator owns
// the serial device for the duration of a single poll cycle (spec.md §5).
type Session struct {
	port    Port
	reader  *bufio.Reader
	timeout time.Duration
	log     *slog.Logger
}

// Open wraps an already-opened port in a Session and immediately issues
// "ATE0" (echo off) to put the modem into a known state, draining its
// response. The caller is responsible for configuring baud/timeout on the
// underlying transport (e.g. via tarm/serial.OpenPort) before calling Open.
func Open(port Port, timeout time.Duration, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		port:    port,
		reader:  bufio.NewReader(port),
		timeout: timeout,
		log:     log,
	}
	if _, err := s.Command("ATE0"); err != nil {
		return nil, fmt.Errorf("atsession: disabling echo: %w", err)
	}
	return s, nil
}

// SendCommand writes line+"\r" to the port without waiting for a response.
func (s *Session) SendCommand(line string) error {
	_, err := s.port.Write([]byte(line + "\r"))
	if err != nil {
		return fmt.Errorf("atsession: write failed: %w", err)
	}
	return nil
}

// ReadResponse accumulates lines until one trims to exactly "OK", returning
// the accumulated body (excluding the terminator). It fails with ErrModem
// if a line trims to "ERROR" or begins with "+CME ERROR:" / "+CMS ERROR:",
// and ErrTimeout if the underlying reader yields EOF before a terminator
// is seen.
func (s *Session) ReadResponse() (string, error) {
	deadline := time.Now().Add(s.timeout)
	var body strings.Builder

	for {
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}
		line, err := s.reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			switch {
			case trimmed == "OK":
				return body.String(), nil
			case trimmed == "ERROR":
				return "", fmt.Errorf("%w: ERROR", ErrModem)
			case strings.HasPrefix(trimmed, "+CME ERROR:"), strings.HasPrefix(trimmed, "+CMS ERROR:"):
				return "", fmt.Errorf("%w: %s", ErrModem, trimmed)
			default:
				body.WriteString(trimmed)
				body.WriteByte('\n')
			}
		}
		if err != nil {
			if line == "" {
				return "", ErrTimeout
			}
			// Partial final line with no trailing newline: treat like any
			// other non-terminator line and keep reading.
			continue
		}
	}
}

// Command sends line and waits for its response in one call.
func (s *Session) Command(line string) (string, error) {
	if err := s.SendCommand(line); err != nil {
		return "", err
	}
	return s.ReadResponse()
}

// ListSMSPDU puts the modem into PDU mode and lists messages in the given
// storage state (0=unread, 1=read, 2=unsent, 3=sent, 4=all), returning the
// raw +CMGL response body for the orchestrator to parse.
func (s *Session) ListSMSPDU(state int) (string, error) {
	if _, err := s.Command("AT+CMGF=0"); err != nil {
		return "", fmt.Errorf("atsession: setting pdu mode: %w", err)
	}
	time.Sleep(settleDelay)
	resp, err := s.Command(fmt.Sprintf("AT+CMGL=%d", state))
	if err != nil {
		return "", fmt.Errorf("atsession: listing messages: %w", err)
	}
	return resp, nil
}

// DeleteMessage issues AT+CMGD=index,flag. flag follows 3GPP TS 27.005
// §4.3 semantics (0: delete the indexed message only; 1-4: bulk deletes by
// read/status).
func (s *Session) DeleteMessage(index, flag int) error {
	if flag < 0 || flag > 4 {
		return fmt.Errorf("atsession: invalid delete flag %d", flag)
	}
	_, err := s.Command(fmt.Sprintf("AT+CMGD=%d,%d", index, flag))
	if err != nil {
		return fmt.Errorf("atsession: deleting message %d: %w", index, err)
	}
	return nil
}

// PreferredStorage issues AT+CPMS="mem" to select the message storage the
// subsequent list/delete operations address, e.g. PreferredStorage("SM")
// for SIM storage.
func (s *Session) PreferredStorage(mem string) error {
	time.Sleep(settleDelay)
	_, err := s.Command(fmt.Sprintf(`AT+CPMS=%q`, mem))
	if err != nil {
		return fmt.Errorf("atsession: selecting storage %q: %w", mem, err)
	}
	return nil
}
