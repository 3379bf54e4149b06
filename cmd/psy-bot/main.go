// ABOUTME: Entry point for the anonymous support bot
// ABOUTME: Wires store, topic binder, exports, engine, and the update loop

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/config"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/dispatch"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/engine"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/export"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/survey"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/telegram"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/topic"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _ __  ___ _   _       | |__   ___ | |_
| '_ \/ __| | | |_____ | '_ \ / _ \| __|
| |_) \__ \ |_| |_____|| |_) | (_) | |_
| .__/|___/\__, |      |_.__/ \___/ \__|
|_|        |___/
`

// getConfigPath returns the path to the bot config file.
// Priority: PSYBOT_CONFIG env var > ./config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PSYBOT_CONFIG"); envPath != "" {
		return envPath
	}
	return "config.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: psy-bot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the bot")
		fmt.Println("  check     Verify the token and admin group")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "check":
		err = runCheck(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	q, err := loadQuestionnaire(cfg)
	if err != nil {
		return fmt.Errorf("loading questionnaire: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Exports:  %s\n", cfg.Exports.Dir)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	tg := telegram.NewClient(cfg.Telegram.Token)
	binder := topic.NewBinder(st, tg, cfg.Telegram.AdminGroupID, cfg.Topics.CacheTTL, logger)

	exporter := export.NewXLSXExporter(st, binder, q, export.XLSXConfig{
		Dir:                     cfg.Exports.Dir,
		Deliver:                 cfg.Exports.Deliver,
		KeepTotal:               cfg.Exports.KeepTotal,
		KeepLivePerConversation: cfg.Exports.KeepLivePerConversation,
	}, logger)
	scheduler := export.NewScheduler(exporter, logger)

	eng := engine.New(st, tg, binder, scheduler, q, logger)

	dispatcher := dispatch.New(tg, eng, st, dispatch.Options{
		GroupID:     cfg.Telegram.AdminGroupID,
		Operators:   cfg.OperatorSet(),
		DropPending: cfg.Telegram.DropPendingUpdates,
		Apology:     q.Prompts.Apology,
	}, logger)

	logger.Info("starting psy-bot",
		"config", configPath,
		"admin_group_id", cfg.Telegram.AdminGroupID,
	)

	err = dispatcher.Run(ctx)

	// Let in-flight exports finish before the process exits.
	scheduler.Wait()
	return err
}

func runCheck(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tg := telegram.NewClient(cfg.Telegram.Token)

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}
	green := color.New(color.FgGreen)
	green.Print("✔ ")
	fmt.Printf("bot: @%s (id %d)\n", me.Username, me.ID)

	chat, err := tg.GetChat(ctx, cfg.Telegram.AdminGroupID)
	if err != nil {
		return fmt.Errorf("admin group check failed: %w", err)
	}
	if chat.Type != telegram.ChatTypeSupergroup || !chat.IsForum {
		return fmt.Errorf("chat %d is not a forum supergroup (type=%s, forum=%v)",
			cfg.Telegram.AdminGroupID, chat.Type, chat.IsForum)
	}
	green.Print("✔ ")
	fmt.Printf("admin group: %q (forum supergroup)\n", chat.Title)
	return nil
}

func loadQuestionnaire(cfg *config.Config) (*survey.Questionnaire, error) {
	if cfg.Survey.File != "" {
		return survey.LoadFile(cfg.Survey.File)
	}
	return survey.Default()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
