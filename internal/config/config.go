// Copyright © 2025 kogeler
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway's configuration: environment
// variables first (mirroring the teacher's loadConfig), with an optional
// YAML overlay file for operators who prefer a config file. Environment
// variables always win when both are set.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the gateway needs at startup.
type Config struct {
	TelegramToken string   `yaml:"telegram_token"`
	ChatIDs       []int64  `yaml:"chat_ids"`
	SerialPort    string   `yaml:"serial_port"`
	BaudRate      int      `yaml:"baud_rate"`
	LogLevel      slog.Level `yaml:"-"`
	LogLevelName  string   `yaml:"log_level"`
	DryRun        bool     `yaml:"dry_run"`

	ExclusionListPath string `yaml:"exclusion_list_path"`

	PollInterval        time.Duration `yaml:"-"`
	PollIntervalStr     string        `yaml:"poll_interval"`
	MultipartMaxAge     time.Duration `yaml:"-"`
	MultipartMaxAgeStr  string        `yaml:"multipart_max_age"`
	TelegramSendTimeout time.Duration `yaml:"-"`
	TelegramSendTimeoutStr string     `yaml:"telegram_send_timeout"`
	NetworkRegGrace     time.Duration `yaml:"-"`
	NetworkRegGraceStr  string        `yaml:"network_reg_grace"`
	ATTimeout           time.Duration `yaml:"-"`
	ATTimeoutStr        string        `yaml:"at_timeout"`
}

// Load builds a Config from an optional YAML file at overlayPath
// (ignored if empty or missing) and environment variables, with
// environment variables taking precedence.
func Load(overlayPath string) (*Config, error) {
	cfg := &Config{
		SerialPort:          "/dev/ttyUSB0",
		BaudRate:            115200,
		LogLevelName:        "INFO",
		ExclusionListPath:   "exclude_numbers.txt",
		PollIntervalStr:     "10s",
		TelegramSendTimeoutStr: "20s",
		NetworkRegGraceStr:  "90s",
		ATTimeoutStr:        "5s",
	}

	if overlayPath != "" {
		if err := loadYAML(overlayPath, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	mergeNonZero(cfg, &overlay)
	return nil
}

// mergeNonZero copies every non-zero field of overlay into cfg. It is
// the YAML-overlay equivalent of "environment variables win": a zero
// value in the file means "not set", never an explicit override to zero.
func mergeNonZero(cfg, overlay *Config) {
	if overlay.TelegramToken != "" {
		cfg.TelegramToken = overlay.TelegramToken
	}
	if len(overlay.ChatIDs) > 0 {
		cfg.ChatIDs = overlay.ChatIDs
	}
	if overlay.SerialPort != "" {
		cfg.SerialPort = overlay.SerialPort
	}
	if overlay.BaudRate != 0 {
		cfg.BaudRate = overlay.BaudRate
	}
	if overlay.LogLevelName != "" {
		cfg.LogLevelName = overlay.LogLevelName
	}
	if overlay.DryRun {
		cfg.DryRun = overlay.DryRun
	}
	if overlay.ExclusionListPath != "" {
		cfg.ExclusionListPath = overlay.ExclusionListPath
	}
	if overlay.PollIntervalStr != "" {
		cfg.PollIntervalStr = overlay.PollIntervalStr
	}
	if overlay.MultipartMaxAgeStr != "" {
		cfg.MultipartMaxAgeStr = overlay.MultipartMaxAgeStr
	}
	if overlay.TelegramSendTimeoutStr != "" {
		cfg.TelegramSendTimeoutStr = overlay.TelegramSendTimeoutStr
	}
	if overlay.NetworkRegGraceStr != "" {
		cfg.NetworkRegGraceStr = overlay.NetworkRegGraceStr
	}
	if overlay.ATTimeoutStr != "" {
		cfg.ATTimeoutStr = overlay.ATTimeoutStr
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.DryRun = envBool("DRY_RUN", cfg.DryRun)

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_IDS"); v != "" {
		cfg.ChatIDs = nil
		for _, idStr := range strings.Split(v, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
				cfg.ChatIDs = append(cfg.ChatIDs, id)
			}
		}
	}
	if v := os.Getenv("SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	if v := os.Getenv("BAUD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BaudRate = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevelName = v
	}
	if v := os.Getenv("EXCLUSION_LIST_PATH"); v != "" {
		cfg.ExclusionListPath = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		cfg.PollIntervalStr = v
	}
	if v := os.Getenv("MULTIPART_MAX_AGE"); v != "" {
		cfg.MultipartMaxAgeStr = v
	}
	if v := os.Getenv("TELEGRAM_SEND_TIMEOUT"); v != "" {
		cfg.TelegramSendTimeoutStr = v
	}
	if v := os.Getenv("NETWORK_REG_GRACE"); v != "" {
		cfg.NetworkRegGraceStr = v
	}
	if v := os.Getenv("AT_TIMEOUT"); v != "" {
		cfg.ATTimeoutStr = v
	}
}

func envBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

// finalize parses the string-typed duration/level fields, validates
// required fields, and fails closed the way the teacher's loadConfig
// does: a missing Telegram token or chat ID list is only acceptable in
// dry-run mode.
func (c *Config) finalize() error {
	if c.TelegramToken == "" && !c.DryRun {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required (or set DRY_RUN)")
	}
	if len(c.ChatIDs) == 0 && !c.DryRun {
		return fmt.Errorf("config: at least one Telegram chat ID is required (or set DRY_RUN)")
	}

	switch strings.ToUpper(c.LogLevelName) {
	case "DEBUG":
		c.LogLevel = slog.LevelDebug
	case "INFO", "":
		c.LogLevel = slog.LevelInfo
	case "WARN", "WARNING":
		c.LogLevel = slog.LevelWarn
	case "ERROR":
		c.LogLevel = slog.LevelError
	default:
		return fmt.Errorf("config: invalid log level %q", c.LogLevelName)
	}

	var err error
	if c.PollInterval, err = parseDuration("poll_interval", c.PollIntervalStr); err != nil {
		return err
	}
	if c.MultipartMaxAge, err = parseDuration("multipart_max_age", c.MultipartMaxAgeStr); err != nil {
		return err
	}
	if c.TelegramSendTimeout, err = parseDuration("telegram_send_timeout", c.TelegramSendTimeoutStr); err != nil {
		return err
	}
	if c.NetworkRegGrace, err = parseDuration("network_reg_grace", c.NetworkRegGraceStr); err != nil {
		return err
	}
	if c.ATTimeout, err = parseDuration("at_timeout", c.ATTimeoutStr); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: invalid %s %q: must be >= 0", field, value)
	}
	return d, nil
}
