// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Package command implements the Command task of spec.md §5: the
// slash-command handler for exclusion-list edits, named as an external
// collaborator in spec.md §1 and given a concrete implementation here
// over go-telegram/bot's own command registration. It runs on the bot's
// update-polling goroutine, independent of the Poller task; its only
// shared state with the Poller is the injected ExclusionSet.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/kogeler/smsbridge/internal/exclusion"
)

// Server registers the exclusion-list slash commands against a bot
// instance.
type Server struct {
	bot        *bot.Bot
	exclusions exclusion.Set
	log        *slog.Logger
}

// NewServer registers /exclude_add, /exclude_remove, and /exclude_list
// on b, operating against set. Call this before b.Start.
func NewServer(b *bot.Bot, set exclusion.Set, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{bot: b, exclusions: set, log: log}

	b.RegisterHandler(bot.HandlerTypeMessageText, "/exclude_add", bot.MatchTypeCommand, s.handleAdd)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/exclude_remove", bot.MatchTypeCommand, s.handleRemove)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/exclude_list", bot.MatchTypeCommand, s.handleList)

	return s
}

func (s *Server) handleAdd(ctx context.Context, b *bot.Bot, update *models.Update) {
	s.reply(ctx, update, addReply(s.exclusions, s.log, commandArg(update.Message.Text)))
}

func (s *Server) handleRemove(ctx context.Context, b *bot.Bot, update *models.Update) {
	s.reply(ctx, update, removeReply(s.exclusions, s.log, commandArg(update.Message.Text)))
}

func (s *Server) handleList(ctx context.Context, b *bot.Bot, update *models.Update) {
	s.reply(ctx, update, listReply(s.exclusions))
}

// addReply, removeReply, and listReply hold the command logic apart from
// the bot.Bot reply mechanism so they can be tested against a fake
// exclusion.Set without a live bot.
func addReply(set exclusion.Set, log *slog.Logger, number string) string {
	if number == "" {
		return "usage: /exclude_add <number>"
	}
	set.Add(number)
	log.Info("exclusion added", "number", number)
	return fmt.Sprintf("excluded %s", number)
}

func removeReply(set exclusion.Set, log *slog.Logger, number string) string {
	if number == "" {
		return "usage: /exclude_remove <number>"
	}
	if set.Remove(number) {
		log.Info("exclusion removed", "number", number)
		return fmt.Sprintf("removed %s", number)
	}
	return fmt.Sprintf("%s was not excluded", number)
}

func listReply(set exclusion.Set) string {
	numbers := set.List()
	if len(numbers) == 0 {
		return "exclusion list is empty"
	}
	return strings.Join(numbers, "\n")
}

func (s *Server) reply(ctx context.Context, update *models.Update, text string) {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		s.log.Error("failed to reply to command", "error", err)
	}
}

// commandArg returns the text following the command token, e.g.
// "/exclude_add 15550001" -> "15550001".
func commandArg(text string) string {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
