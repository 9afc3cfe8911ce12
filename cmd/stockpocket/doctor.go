package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/Individeveloper/StockPocket/internal/config"
	"github.com/Individeveloper/StockPocket/internal/provider"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your StockPocket installation",
		Long: `Verifies that StockPocket's configuration, AI backend, data providers and
session database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("StockPocket Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'stockpocket init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Data directory
			if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
				printFail("Data directory", err.Error())
				failed++
			} else {
				printPass("Data directory", cfg.General.DataDir)
				passed++
			}

			// 4. Session database writable
			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				printFail("Session database", err.Error())
				failed++
			} else {
				printPass("Session database", cfg.Store.DBPath)
				passed++
			}

			// 5. AI backend reachable
			if !configuredKey(cfg.Provider.APIKey) {
				printWarn("Gemini", "no API key set (GEMINI_API_KEY); replies will be apologies")
				warned++
			} else {
				gemini := provider.NewGemini(provider.GeminiConfig{
					APIKey:  cfg.Provider.APIKey,
					APIBase: cfg.Provider.APIBase,
					Model:   cfg.Provider.Model,
					Logger:  logger,
				})
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := gemini.Healthy(ctx); err != nil {
					printFail("Gemini", err.Error())
					failed++
				} else {
					printPass("Gemini", cfg.Provider.Model)
					passed++
				}
				cancel()
			}

			// 6. Market data provider
			if configuredKey(cfg.Market.APIKey) {
				printPass("Market data", "API key configured")
				passed++
			} else {
				printWarn("Market data", "no API key set (FMP_API_KEY); quote tools will come back empty")
				warned++
			}

			// 7. News provider
			if configuredKey(cfg.News.APIKey) {
				printPass("News", "API token configured")
				passed++
			} else {
				printWarn("News", "no API token set (MARKETAUX_API_TOKEN); news tools will come back empty")
				warned++
			}

			// 8. Telegram channel
			if cfg.Channels.Telegram.Enabled {
				if configuredKey(cfg.Channels.Telegram.Token) {
					printPass("Telegram", "token configured")
					passed++
				} else {
					printFail("Telegram", "enabled but no token set (TELEGRAM_BOT_TOKEN)")
					failed++
				}
			}

			// 9. Remote store
			if cfg.Store.Remote.UserID != "" {
				printPass("Remote store", fmt.Sprintf("project %s, user %s", cfg.Store.Remote.ProjectID, cfg.Store.Remote.UserID))
				passed++
			}

			// 10. Metrics address free
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			// 11. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running StockPocket.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nStockPocket should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! StockPocket is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
