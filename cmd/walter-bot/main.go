package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"walter-bot/internal/ai"
	"walter-bot/internal/bot"
	"walter-bot/internal/config"
	"walter-bot/internal/format"
	"walter-bot/internal/history"
	"walter-bot/internal/metrics"
	"walter-bot/internal/schedule"
	"walter-bot/internal/source"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var (
		cfgPath = flag.String("config", "config.yml", "path to YAML config")
		once    = flag.Bool("once", false, "run the daily post a single time then exit")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info(".env not loaded, using environment only", "error", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	log.Info("walter-bot starting", "version", Version)

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		log.Error("load timezone", "timezone", cfg.Schedule.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enable {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			log.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	deps := bot.Deps{
		Water:       source.NewWater(cfg.Water, log),
		Electricity: source.NewElectricity(cfg.Electricity, log),
		WaterFmt:    format.New(format.Water()),
		ElecFmt:     format.New(format.Electricity()),
		History:     history.New(cfg.History, log),
	}
	if svc, err := ai.New(cfg.AI, log); err != nil {
		log.Warn("AI commentary disabled", "error", err)
	} else {
		deps.AI = svc
	}

	b, err := bot.New(cfg.Discord, cfg.Schedule, loc, deps, log)
	if err != nil {
		log.Error("build bot", "error", err)
		os.Exit(1)
	}
	if err := b.Start(); err != nil {
		log.Error("start bot", "error", err)
		os.Exit(1)
	}
	defer func() { _ = b.Stop() }()

	if *once {
		b.RunDaily(ctx)
		return
	}

	// Daily loop: sleep until the next fire time, post, repeat.
	for {
		next := schedule.Next(time.Now(), cfg.Schedule.Hour, cfg.Schedule.Minute, loc)
		log.Info("next daily post scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("stopping", "reason", ctx.Err())
			return
		case <-timer.C:
			b.RunDaily(ctx)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}
