// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Package sink implements the delivery side of spec.md §6's Sink
// interface: delivering already-rendered chat text. TelegramSink retries
// each chat with bounded exponential backoff; an error it finally returns
// is logged by the orchestrator, which continues with the next record
// and does not abort the cycle.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sink is the single-method collaborator spec.md §6 specifies. Deliver
// errors are logged by the orchestrator and the cycle continues with the
// next record; Deliver itself must not panic.
type Sink interface {
	Deliver(ctx context.Context, text string) error
}

// TelegramSink delivers to a fixed set of Telegram chats with bounded
// exponential-backoff retry, grounded on the teacher's
// sendToTelegramWithRetry.
type TelegramSink struct {
	bot         *bot.Bot
	chatIDs     []int64
	sendTimeout time.Duration
	log         *slog.Logger

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewTelegramSink builds a TelegramSink with the teacher's retry
// parameters (10 attempts, 5s base delay, 5m cap).
func NewTelegramSink(b *bot.Bot, chatIDs []int64, sendTimeout time.Duration, log *slog.Logger) *TelegramSink {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramSink{
		bot:         b,
		chatIDs:     chatIDs,
		sendTimeout: sendTimeout,
		log:         log,
		MaxRetries:  10,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// Deliver sends text, HTML-formatted, to every configured chat ID,
// retrying each chat independently with exponential backoff. It returns
// a joined error if any chat never succeeded after MaxRetries attempts.
func (s *TelegramSink) Deliver(ctx context.Context, text string) error {
	if s.bot == nil {
		return errors.New("sink: telegram bot not initialized")
	}

	var sendErrors []error
	for _, chatID := range s.chatIDs {
		if err := s.deliverToChat(ctx, chatID, text); err != nil {
			sendErrors = append(sendErrors, err)
		}
	}
	if len(sendErrors) > 0 {
		return errors.Join(sendErrors...)
	}
	return nil
}

func (s *TelegramSink) deliverToChat(ctx context.Context, chatID int64, text string) error {
	delay := s.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		_, err := s.bot.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		s.log.Warn("telegram send failed", "chat_id", chatID, "attempt", attempt, "error", err, "next_retry_in", delay)

		if attempt == s.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.MaxDelay {
			delay = s.MaxDelay
		}
	}

	return errors.New("sink: failed to deliver to chat after retries: " + lastErr.Error())
}

// LogSink logs the rendered message instead of delivering it, used when
// the gateway runs in dry-run mode (grounded on the teacher's DRY_RUN
// handling).
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a Sink that logs instead of delivering.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

// Deliver logs text at info level and never fails.
func (s *LogSink) Deliver(_ context.Context, text string) error {
	s.log.Info("dry run: would deliver message", "text", text)
	return nil
}
