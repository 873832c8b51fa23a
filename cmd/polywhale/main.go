package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/polywhale/internal/analyst"
	"github.com/rewired-gh/polywhale/internal/config"
	"github.com/rewired-gh/polywhale/internal/logger"
	"github.com/rewired-gh/polywhale/internal/monitor"
	"github.com/rewired-gh/polywhale/internal/polymarket"
	"github.com/rewired-gh/polywhale/internal/scheduler"
	"github.com/rewired-gh/polywhale/internal/storage"
	"github.com/rewired-gh/polywhale/internal/telegram"
	"github.com/rewired-gh/polywhale/internal/watcher"
)

var (
	configPath   = flag.String("config", "configs/config.yaml", "Path to configuration file")
	importLegacy = flag.String("import-legacy", "", "Path to a JSON state file to import when the database is empty")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone: %v", err)
	}

	store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	legacyPath := *importLegacy
	if legacyPath == "" {
		legacyPath = cfg.Storage.LegacyStatePath
	}
	if legacyPath != "" {
		imported, err := store.ImportLegacyFile(legacyPath, time.Now().In(loc))
		switch {
		case err != nil:
			logger.Warn("Legacy state not imported: %v", err)
		case imported:
			logger.Info("Imported legacy state from %s", legacyPath)
		default:
			logger.Debug("State already present, skipping legacy import")
		}
	}

	st, err := store.LoadState(time.Now().In(loc))
	if err != nil {
		logger.Warn("Stored state unreadable, starting fresh: %v", err)
	}
	logger.Info("Loaded state. Insights today: %d/%d, %d known trades",
		st.Budget.Count, cfg.Scheduler.MaxPerDay, st.Trades.Len())

	categories := polymarket.Categories(cfg.Polymarket.Categories)
	polyClient := polymarket.NewClient(polymarket.Options{
		GammaAPIURL:   cfg.Polymarket.GammaAPIURL,
		DataAPIURL:    cfg.Polymarket.DataAPIURL,
		Timeout:       cfg.Polymarket.Timeout,
		RatePerSecond: cfg.Polymarket.RatePerSecond,
		Categories:    categories,
	})

	var notifier telegram.Notifier = telegram.LogNotifier{}
	var telegramClient *telegram.Client
	if cfg.Telegram.Active() {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelay)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized for %d chat(s)", len(cfg.Telegram.ChatIDs))
	} else {
		logger.Warn("Telegram inactive (%s not set), notifications go to the log only", cfg.Telegram.Missing())
	}

	var advisor scheduler.Analyzer
	analystClient := analyst.NewClient(analyst.Config{
		DeepSeekAPIKey: cfg.Analyst.DeepSeekAPIKey,
		DeepSeekURL:    cfg.Analyst.DeepSeekURL,
		Model:          cfg.Analyst.Model,
		Temperature:    cfg.Analyst.Temperature,
		TavilyAPIKey:   cfg.Analyst.TavilyAPIKey,
		TavilyURL:      cfg.Analyst.TavilyURL,
		Timeout:        cfg.Analyst.Timeout,
	})
	if analystClient.Enabled() {
		advisor = analystClient
	} else {
		logger.Warn("DeepSeek API key missing, insights are sent without advisory")
	}

	monitorConfig := monitor.Config{
		WhaleThreshold:     cfg.Whale.Threshold,
		MegaWhaleThreshold: cfg.Whale.MegaThreshold,
		VolumeThreshold:    cfg.Collector.VolumeThreshold,
		MoveThreshold:      cfg.Collector.MoveThreshold,
		MoveWeight:         cfg.Collector.MoveWeight,
	}
	sched := scheduler.New(scheduler.Config{
		MaxPerDay:       cfg.Scheduler.MaxPerDay,
		MinInterval:     cfg.Scheduler.MinInterval,
		Cooldown:        cfg.Scheduler.Cooldown,
		CategoryPenalty: cfg.Scheduler.CategoryPenalty,
		SendPause:       cfg.Scheduler.SendPause,
		CandidateTTL:    cfg.Collector.CandidateTTL,
	}, advisor, notifier)

	w := watcher.New(
		watcher.Config{Window: cfg.Polymarket.Window, EventLimit: cfg.Polymarket.EventLimit, Location: loc},
		polyClient,
		store,
		monitor.NewWhaleDetector(monitorConfig, notifier),
		monitor.NewCollector(monitorConfig),
		sched,
		st,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current tick...")
		cancel()
	}()

	if telegramClient != nil && cfg.Telegram.Commands {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting whale watcher (interval: %v, window: %v, whale: $%.0f, budget: %d/day)",
		cfg.Polymarket.PollInterval,
		cfg.Polymarket.Window,
		cfg.Whale.Threshold,
		cfg.Scheduler.MaxPerDay,
	)

	ticker := time.NewTicker(cfg.Polymarket.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleTickResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Tick failed: %v", err)
			if consecutiveFailures == 1 {
				if sendErr := notifier.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 {
			if sendErr := notifier.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	runTick := func() {
		_, err := w.Tick(ctx)
		if ctx.Err() != nil {
			return
		}
		handleTickResult(err)
	}

	logger.Debug("Running initial tick")
	runTick()

	for {
		select {
		case <-ctx.Done():
			if err := w.Save(); err != nil {
				logger.Error("Final state save failed: %v", err)
			}
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			runTick()
		}
	}
}
