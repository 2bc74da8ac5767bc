package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/config"
	"github.com/ticketer-io/ticketer/internal/generate"
	"github.com/ticketer-io/ticketer/internal/logbuf"
	"github.com/ticketer-io/ticketer/internal/notify"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/internal/status"
	"github.com/ticketer-io/ticketer/internal/store"
	"github.com/ticketer-io/ticketer/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("ticketerd starting", "api", cfg.API.BaseURL)

	// 1. Open the batch store
	os.MkdirAll(cfg.DataDir, 0o755)
	dbPath := filepath.Join(cfg.DataDir, "ticketer.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open batch store", "path", dbPath, "error", err)
		os.Exit(1)
	}

	// 2. Ticket service client
	client := api.New(cfg.API.BaseURL, cfg.API.Token)

	// 3. Notifiers
	var notifiers []notify.Notifier
	if cfg.Notify.Slack != nil {
		sn, err := notify.NewSlack(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel)
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, sn)
		logger.Info("slack notifier configured", "channel", cfg.Notify.Slack.Channel)
	}
	if cfg.Notify.Telegram != nil {
		tn, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			logger.Error("failed to init telegram notifier", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, tn)
		logger.Info("telegram notifier configured", "chat_id", cfg.Notify.Telegram.ChatID)
	}
	multi := notify.NewMulti(logger.With("component", "notify"), notifiers...)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Transcript pipeline + directory watcher
	proc := &processor{
		client: client,
		store:  st,
		notify: multi,
		cfg:    cfg.Generate,
		logger: logger.With("component", "pipeline"),
	}

	if cfg.Watch != nil {
		watcher := watch.New(cfg.Watch.Dir, cfg.Watch.Schedule, st, proc.process,
			logger.With("component", "watch"))
		go safeGo(logger, "watcher", func() { watcher.Start(ctx) })
	} else {
		logger.Info("no watch directory configured, running status server only")
	}

	// 5. Status server
	statusSrv := status.NewServer(st, status.Config{
		Host: cfg.Status.Host,
		Port: cfg.Status.Port,
		Key:  cfg.Status.Key,
	}, logger.With("component", "status"), logBuf)

	go safeGo(logger, "status-server", func() { statusSrv.Start(ctx) })
	logger.Info("status server started", "port", cfg.Status.Port)

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("ticketerd stopped")
}

// processor runs the unattended pipeline for one transcript file:
// upload, generate, persist, notify.
type processor struct {
	client *api.Client
	store  store.Store
	notify *notify.Multi
	cfg    config.GenerateConfig
	logger *slog.Logger
}

func (p *processor) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	logger := p.logger.With("file", name)

	f, err := os.Open(path)
	if err != nil {
		logger.Error("open transcript failed", "error", err)
		return
	}
	batch, err := p.client.UploadTranscript(ctx, name, f)
	f.Close()
	if err != nil {
		logger.Error("upload failed", "error", err)
		return
	}
	logger.Info("transcript uploaded", "bucket", batch.Bucket)

	// Each file gets its own session; jobs for different files never
	// share a slot.
	state := session.NewState()
	state.SetBatch(batch, "")
	gen := &generate.Controller{
		Client:      p.client,
		State:       state,
		Interval:    time.Duration(p.cfg.PollIntervalSeconds) * time.Second,
		MaxAttempts: p.cfg.MaxAttempts,
		Logger:      logger,
	}

	tickets, err := gen.Run(ctx, name, p.cfg.Tickets)
	if err != nil {
		logger.Error("generation failed", "error", err)
		p.notify.Notify(ctx, fmt.Sprintf("ticket generation failed for %s: %v", name, err))
		return
	}
	_, token := state.Batch()

	b := &store.Batch{
		ID:        uuid.NewString(),
		FileName:  name,
		Bucket:    batch.Bucket,
		Token:     token,
		CreatedAt: time.Now(),
	}
	for _, t := range tickets {
		b.Tickets = append(b.Tickets, store.Record{Ticket: t})
	}
	if err := p.store.SaveBatch(b); err != nil {
		logger.Error("save batch failed", "error", err)
		return
	}

	logger.Info("batch saved", "batch", b.ID, "tickets", len(tickets))
	p.notify.Notify(ctx, fmt.Sprintf("%d tickets generated from %s", len(tickets), name))
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
