package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Individeveloper/StockPocket/internal/agent"
	"github.com/Individeveloper/StockPocket/internal/attach"
	"github.com/Individeveloper/StockPocket/internal/channel"
	"github.com/Individeveloper/StockPocket/internal/config"
	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/market"
	"github.com/Individeveloper/StockPocket/internal/metrics"
	"github.com/Individeveloper/StockPocket/internal/provider"
	"github.com/Individeveloper/StockPocket/internal/session"
	"github.com/Individeveloper/StockPocket/internal/tool"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "stockpocket",
		Short: "StockPocket: conversational stock market research assistant",
		Long:  "StockPocket answers questions about stocks, company fundamentals and market\nnews, grounded in live market data and the documents you upload.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.stockpocket/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to built-in defaults when
// it does not exist yet, and switches the process logger to the configured
// outputs. The returned closer flushes the log file.
func loadConfig() (*config.Config, func() error, error) {
	cfg, err := config.LoadOrDefault(resolveConfigPath())
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	log, closeLog := config.SetupLogger(cfg.General.LogFile, config.ParseLevel(cfg.General.LogLevel))
	logger = log
	return cfg, closeLog, nil
}

// configuredKey reports whether a secret holds a real value rather than an
// empty string or an unexpanded ${VAR} placeholder.
func configuredKey(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, "${")
}

func openStore(ctx context.Context, cfg *config.Config) (domain.SessionStore, error) {
	return session.Open(ctx, session.Options{
		DBPath:    cfg.Store.DBPath,
		ProjectID: cfg.Store.Remote.ProjectID,
	}, domain.Identity{UserID: cfg.Store.Remote.UserID}, logger)
}

// buildDeps wires the engine: market and news gateways, tool registry, the
// Gemini backend, the orchestrator, the session store and its debounced
// saver. The returned cleanup flushes pending saves and closes the store.
func buildDeps(ctx context.Context, cfg *config.Config) (*channel.Deps, func(), error) {
	marketClient := market.NewClient(market.Config{
		APIKey:  cfg.Market.APIKey,
		APIBase: cfg.Market.APIBase,
		Logger:  logger,
	})
	newsClient := market.NewNewsClient(market.NewsConfig{
		APIKey:  cfg.News.APIKey,
		APIBase: cfg.News.APIBase,
		Logger:  logger,
	})
	registry := tool.NewRegistry(logger)
	tool.RegisterMarketTools(registry, marketClient, newsClient)

	gemini := provider.NewGemini(provider.GeminiConfig{
		APIKey:  cfg.Provider.APIKey,
		APIBase: cfg.Provider.APIBase,
		Model:   cfg.Provider.Model,
		Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})

	orch := agent.New(agent.Config{
		Provider:          gemini,
		Tools:             registry,
		Fallbacks:         agent.LoadFallbacks(cfg.General.FallbacksFile, logger),
		Logger:            logger,
		Temperature:       cfg.Provider.Temperature,
		SystemPromptExtra: cfg.General.SystemPromptExtra,
		MaxParallelTools:  cfg.General.MaxParallelTools,
		RateBurst:         cfg.General.RateBurst,
		RatePerMinute:     cfg.General.RatePerMinute,
	})

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	saver := session.NewSaver(store, time.Duration(cfg.Store.DebounceMs)*time.Millisecond, logger)

	deps := &channel.Deps{
		Orchestrator: orch,
		Store:        store,
		Saver:        saver,
		Limits: attach.Limits{
			PDFMaxBytes:         cfg.Attachments.PDFMaxBytes,
			SpreadsheetMaxBytes: cfg.Attachments.SpreadsheetMaxBytes,
			CSVMaxBytes:         cfg.Attachments.CSVMaxBytes,
			TextMaxBytes:        cfg.Attachments.TextMaxBytes,
		},
		Logger: logger,
	}
	cleanup := func() {
		saver.Close()
		if err := store.Close(); err != nil {
			logger.Warn("store close", "err", err)
		}
	}
	return deps, cleanup, nil
}

// startMetrics exposes /metrics when enabled. The server shuts down with
// the context.
func startMetrics(ctx context.Context, cfg *config.Config) {
	if !cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Default.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and create the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "dataDir", dataDir)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	startMetrics(ctx, cfg)

	cli := channel.NewCLI(channel.CLIConfig{Deps: deps, Logger: logger})
	return cli.Start(ctx)
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the Telegram bot",
		Long:  "Starts the Telegram channel and, when enabled, the metrics endpoint. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if !cfg.Channels.Telegram.Enabled {
		return fmt.Errorf("telegram channel disabled; set channels.telegram.enabled to true")
	}
	if !configuredKey(cfg.Channels.Telegram.Token) {
		return fmt.Errorf("telegram token missing; set TELEGRAM_BOT_TOKEN or channels.telegram.token")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	startMetrics(ctx, cfg)

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Channels.Telegram.Token,
		AllowFrom: cfg.Channels.Telegram.AllowFrom,
		ParseMode: cfg.Channels.Telegram.ParseMode,
		Deps:      deps,
		Logger:    logger,
	})
	logger.Info("gateway started. Press Ctrl+C to stop.")
	return tg.Start(ctx)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. provider.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. provider.model gemini-2.0-flash)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("stockpocket " + version)
		},
	}
}
