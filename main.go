// genstudio - terminal chat client for the brand content studio.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jeranaias/genstudio/internal/attach"
	"github.com/jeranaias/genstudio/internal/bridge"
	"github.com/jeranaias/genstudio/internal/cli"
	"github.com/jeranaias/genstudio/internal/config"
	"github.com/jeranaias/genstudio/internal/prefs"
	"github.com/jeranaias/genstudio/internal/session"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usage = `genstudio - chat with the brand content studio

Usage:
  genstudio [flags]

Flags:
  --config <path>    Config file (default ~/.genstudio/config.toml)
  --brand <id>       Select a brand on start
  --prefs <backend>  Preference store: memory, file or sqlite
  --no-markdown      Print assistant replies as plain text
  --debug            Log to stderr instead of the log file
  --version          Print version and exit
  --help             Show this help

Environment:
  GENSTUDIO_BRIDGE_URL, GENSTUDIO_BRIDGE_TOKEN, GENSTUDIO_POLL_INTERVAL_MS,
  GENSTUDIO_PREFS_BACKEND, GENSTUDIO_PREFS_PATH, GENSTUDIO_ASSETS_* (a .env
  file in the working directory is loaded first)
`

func init() {
	godotenv.Load()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	args := cli.NewArgParser(rawArgs, "version", "help", "h", "no-markdown", "debug")

	if args.BoolFlag("help") || args.BoolFlag("h") {
		fmt.Print(usage)
		return cli.ExitSuccess
	}
	if args.BoolFlag("version") {
		fmt.Printf("genstudio %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return cli.ExitSuccess
	}

	cfg, err := loadConfig(args.Flag("config"))
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}
	if backend := args.Flag("prefs"); backend != "" {
		cfg.Preferences.Backend = strings.ToLower(backend)
		if err := cfg.Validate(); err != nil {
			cli.DisplayError(os.Stderr, err)
			return cli.GetExitCode(err)
		}
	}

	logger, closeLog := openLogger(args.BoolFlag("debug"))
	defer closeLog()
	logger.Printf("STARTUP | version=%s bridge=%s prefs=%s", Version, cfg.Bridge.URL, cfg.Preferences.Backend)

	if err := runSession(cfg, args, logger); err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// =============================================================================
// WIRING
// =============================================================================

func runSession(cfg *config.Config, args *cli.ArgParser, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	client := bridge.NewClient(bridge.ClientConfig{
		BaseURL:           cfg.Bridge.URL,
		Token:             cfg.Bridge.Token,
		Timeout:           cfg.BridgeTimeout(),
		RequestsPerSecond: cfg.Bridge.RequestsPerSecond,
		Burst:             cfg.Bridge.Burst,
		Logger:            logger,
	})
	logger.Printf("BRIDGE_CONFIGURED | url=%s", client.BaseURL())

	store, closeStore, err := openPrefsStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	adapter := prefs.NewAdapter(store, prefs.Defaults{
		AspectRatio:    cfg.Session.DefaultAspectRatio,
		GenerationMode: cfg.Session.DefaultGenerationMode,
	}, logger)

	pipelineOpts := attach.Options{
		AllowedExtensions: cfg.Attachments.AllowedExtensions,
		MaxFileBytes:      cfg.Attachments.MaxFileBytes,
		Logger:            logger,
	}
	if cfg.Assets.Endpoint != "" {
		src, err := attach.NewMinioSource(attach.MinioConfig{
			Endpoint:        cfg.Assets.Endpoint,
			AccessKey:       cfg.Assets.AccessKey,
			SecretKey:       cfg.Assets.SecretKey,
			Bucket:          cfg.Assets.Bucket,
			UseSSL:          cfg.Assets.UseSSL,
			ThumbnailPrefix: cfg.Assets.ThumbnailPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to open asset library: %w", err)
		}
		pipelineOpts.Assets = src
		logger.Printf("ASSETS_CONFIGURED | endpoint=%s bucket=%s", cfg.Assets.Endpoint, src.Bucket())
	}

	width := cli.GetTerminalWidth()
	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}
	repl := cli.New(cli.Options{
		Out:         os.Stdout,
		HistoryFile: historyFile,
		Config:      cfg,
		Logger:      logger,
		Markdown:    !args.BoolFlag("no-markdown") && cli.IsStdoutTTY(),
		Width:       width,
	})

	ctrl, err := session.New(session.Options{
		Backend:           client,
		Prefs:             adapter,
		Pipeline:          attach.New(pipelineOpts),
		Logger:            logger,
		PollInterval:      cfg.PollInterval(),
		OnMediaRegistered: repl.MediaHook(),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if path := configPath(args.Flag("config")); path != "" {
		watcher, err := config.NewWatcher(path, func(next *config.Config) {
			ctrl.SetPollInterval(next.PollInterval())
		}, logger)
		if err != nil {
			logger.Printf("CONFIG_WATCH_ERROR | path=%s error=%v", path, err)
		} else {
			defer watcher.Close()
		}
	}

	if brand := args.Flag("brand"); brand != "" {
		ctrl.SetBrand(ctx, brand)
	}

	return repl.Run(ctx, ctrl)
}

// loadConfig reads the config file named by path, or the default one.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

// configPath returns the file to watch, or "" when none exists.
func configPath(flag string) string {
	path := flag
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return ""
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func openPrefsStore(cfg *config.Config) (prefs.Store, func(), error) {
	noop := func() {}
	if cfg.Preferences.Backend == config.PrefsMemory {
		return prefs.NewMemoryStore(), noop, nil
	}

	path, err := cfg.PreferencesPath()
	if err != nil {
		return nil, noop, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, noop, fmt.Errorf("failed to create preferences directory: %w", err)
	}

	switch cfg.Preferences.Backend {
	case config.PrefsSQLite:
		s, err := prefs.OpenSQLiteStore(path)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := prefs.OpenFileStore(path)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}

// openLogger writes to ~/.genstudio/genstudio.log so log lines never
// interleave with the prompt.
func openLogger(debug bool) (*log.Logger, func()) {
	if debug {
		return log.New(os.Stderr, "[genstudio] ", log.LstdFlags), func() {}
	}
	if err := config.EnsureConfigDir(); err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "genstudio.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	return log.New(f, "[genstudio] ", log.LstdFlags), func() { f.Close() }
}
