// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Command smsbridge runs the SMS-to-chat forwarding gateway: it opens a
// serial AT modem, polls it for incoming SMS, reassembles multipart
// messages, and forwards them to Telegram, while (outside dry-run mode) a
// second goroutine listens for exclusion-list slash commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/tarm/serial"

	"github.com/kogeler/smsbridge/internal/atsession"
	"github.com/kogeler/smsbridge/internal/command"
	"github.com/kogeler/smsbridge/internal/config"
	"github.com/kogeler/smsbridge/internal/diag"
	"github.com/kogeler/smsbridge/internal/exclusion"
	"github.com/kogeler/smsbridge/internal/forwarder"
	"github.com/kogeler/smsbridge/internal/sink"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config overlay")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("smsbridge", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := setupLogging(cfg.LogLevel)

	log.Info("starting smsbridge",
		"serial_port", cfg.SerialPort,
		"baud_rate", cfg.BaudRate,
		"chat_ids", cfg.ChatIDs,
		"dry_run", cfg.DryRun,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// run wires the gateway's collaborators together and starts the two
// cooperating tasks: the Poller (serial AT polling) and the Command
// server (Telegram slash commands), both sharing one ExclusionSet. In
// dry-run mode no bot is created and only the Poller runs.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	excl, err := exclusion.NewFileSet(cfg.ExclusionListPath, log)
	if err != nil {
		return fmt.Errorf("smsbridge: loading exclusion list: %w", err)
	}

	var deliverySink sink.Sink
	var tgBot *bot.Bot
	if cfg.DryRun {
		log.Warn("running in dry-run mode, messages will only be logged")
		deliverySink = sink.NewLogSink(log)
	} else {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("smsbridge: creating telegram bot: %w", err)
		}
		deliverySink = sink.NewTelegramSink(tgBot, cfg.ChatIDs, cfg.TelegramSendTimeout, log)
		command.NewServer(tgBot, excl, log)
	}

	notifier := diag.NewNotifier(deliverySink, hostname)

	orchestrator := &forwarder.Orchestrator{
		Open:            sessionOpener(cfg, log),
		Exclusions:      excl,
		Sink:            deliverySink,
		Notifier:        notifier,
		NetworkRegGrace: cfg.NetworkRegGrace,
		ListState:       0,
		DeleteFlag:      0,
		Log:             log,
	}

	if tgBot != nil {
		go tgBot.Start(ctx)
	}

	forwarder.RunPoller(ctx, orchestrator, cfg.PollInterval)
	return nil
}

// sessionOpener returns a forwarder.SessionOpener that opens a fresh
// serial connection and AT session for each poll cycle (spec.md §5: the
// serial device is not held open between cycles).
func sessionOpener(cfg *config.Config, log *slog.Logger) forwarder.SessionOpener {
	return func() (*atsession.Session, io.Closer, error) {
		serialCfg := &serial.Config{
			Name:        cfg.SerialPort,
			Baud:        cfg.BaudRate,
			ReadTimeout: 500 * time.Millisecond,
		}
		port, err := serial.OpenPort(serialCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("smsbridge: opening serial port %s: %w", cfg.SerialPort, err)
		}

		sess, err := atsession.Open(port, cfg.ATTimeout, log)
		if err != nil {
			port.Close()
			return nil, nil, err
		}
		if err := sess.PreferredStorage("SM"); err != nil {
			log.Warn("failed to set preferred sms storage", "error", err)
		}
		return sess, port, nil
	}
}
