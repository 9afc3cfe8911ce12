package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for StockPocket.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Provider    ProviderConfig    `json:"provider"`
	Market      MarketConfig      `json:"market"`
	News        NewsConfig        `json:"news"`
	Store       StoreConfig       `json:"store"`
	Channels    ChannelsConfig    `json:"channels"`
	Attachments AttachmentsConfig `json:"attachments"`
	Metrics     MetricsConfig     `json:"metrics"`
}

type GeneralConfig struct {
	DataDir           string  `json:"dataDir"`
	LogLevel          string  `json:"logLevel"`
	LogFile           string  `json:"logFile,omitempty"`
	SystemPromptExtra string  `json:"systemPromptExtra,omitempty"` // custom text appended to system prompt
	FallbacksFile     string  `json:"fallbacksFile,omitempty"`     // optional YAML overriding fallback replies
	MaxParallelTools  int     `json:"maxParallelTools"`
	RatePerMinute     float64 `json:"ratePerMinute"`
	RateBurst         int     `json:"rateBurst"`
}

// ProviderConfig configures the generative AI backend.
type ProviderConfig struct {
	APIKey         string  `json:"apiKey,omitempty"`
	APIBase        string  `json:"apiBase,omitempty"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

// MarketConfig configures the financial data provider.
type MarketConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
}

// NewsConfig configures the news provider.
type NewsConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
}

type StoreConfig struct {
	DBPath     string       `json:"dbPath"`
	DebounceMs int          `json:"debounceMs"`
	Remote     RemoteConfig `json:"remote"`
}

// RemoteConfig selects the cloud store. A non-empty UserID switches
// persistence from the local database to Firestore.
type RemoteConfig struct {
	ProjectID string `json:"projectId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

type ChannelsConfig struct {
	CLI      CLIConfig      `json:"cli"`
	Telegram TelegramConfig `json:"telegram"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// AttachmentsConfig sets the per-category document size limits in bytes.
type AttachmentsConfig struct {
	PDFMaxBytes         int64 `json:"pdfMaxBytes"`
	SpreadsheetMaxBytes int64 `json:"spreadsheetMaxBytes"`
	CSVMaxBytes         int64 `json:"csvMaxBytes"`
	TextMaxBytes        int64 `json:"textMaxBytes"`
}

// MetricsConfig configures the Prometheus-format metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.stockpocket).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stockpocket"
	}
	return filepath.Join(home, ".stockpocket")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadOrDefault loads the file at path when it exists, otherwise returns
// the defaults with environment placeholders expanded. Either way the
// result is validated.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); err == nil {
		return Load(path)
	}

	data, err := json.Marshal(Defaults())
	if err != nil {
		return nil, fmt.Errorf("cannot marshal defaults: %w", err)
	}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse defaults: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.FallbacksFile = ExpandPath(cfg.General.FallbacksFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars substitutes ${VAR} placeholders with environment values.
// ${VAR:-default} falls back to the default when VAR is unset or empty. A
// plain ${VAR} with no value stays in place, so an unset secret remains
// recognizable as unconfigured instead of becoming an empty string.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(placeholder string) string {
		groups := envVarPattern.FindStringSubmatch(placeholder)
		name, fallback := groups[1], groups[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if fallback != "" {
			return fallback
		}
		return placeholder
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxParallelTools < 1 || cfg.General.MaxParallelTools > 32 {
		errs = append(errs, "general.maxParallelTools must be between 1 and 32")
	}
	if cfg.General.RatePerMinute <= 0 {
		errs = append(errs, "general.ratePerMinute must be > 0")
	}
	if cfg.General.RateBurst < 1 {
		errs = append(errs, "general.rateBurst must be >= 1")
	}

	if cfg.Provider.Model == "" {
		errs = append(errs, "provider.model is required")
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		errs = append(errs, "provider.temperature must be between 0 and 2")
	}
	if cfg.Provider.TimeoutSeconds < 1 {
		errs = append(errs, "provider.timeoutSeconds must be >= 1")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}
	if cfg.Store.DebounceMs < 0 || cfg.Store.DebounceMs > 60000 {
		errs = append(errs, "store.debounceMs must be between 0 and 60000")
	}
	if cfg.Store.Remote.UserID != "" && cfg.Store.Remote.ProjectID == "" {
		errs = append(errs, "store.remote.projectId is required when store.remote.userId is set")
	}

	switch cfg.Channels.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
		// valid
	default:
		errs = append(errs, "channels.telegram.parseMode must be one of: Markdown, MarkdownV2, HTML")
	}

	if cfg.Attachments.PDFMaxBytes < 1 {
		errs = append(errs, "attachments.pdfMaxBytes must be >= 1")
	}
	if cfg.Attachments.SpreadsheetMaxBytes < 1 {
		errs = append(errs, "attachments.spreadsheetMaxBytes must be >= 1")
	}
	if cfg.Attachments.CSVMaxBytes < 1 {
		errs = append(errs, "attachments.csvMaxBytes must be >= 1")
	}
	if cfg.Attachments.TextMaxBytes < 1 {
		errs = append(errs, "attachments.textMaxBytes must be >= 1")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
