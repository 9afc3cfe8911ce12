package config

// Defaults returns the baseline configuration. API keys default to
// environment placeholders so a generated config file picks them up from
// the environment; an unset variable leaves the placeholder in place,
// which the clients treat as "no key configured".
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:          "~/.stockpocket",
			LogLevel:         "info",
			MaxParallelTools: 4,
			RatePerMinute:    30,
			RateBurst:        5,
		},
		Provider: ProviderConfig{
			APIKey:         "${GEMINI_API_KEY}",
			Model:          "gemini-2.0-flash",
			Temperature:    0.3,
			TimeoutSeconds: 60,
		},
		Market: MarketConfig{
			APIKey: "${FMP_API_KEY}",
		},
		News: NewsConfig{
			APIKey: "${MARKETAUX_API_TOKEN}",
		},
		Store: StoreConfig{
			DBPath:     "~/.stockpocket/sessions.db",
			DebounceMs: 500,
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				Token:     "${TELEGRAM_BOT_TOKEN}",
				ParseMode: "Markdown",
			},
		},
		Attachments: AttachmentsConfig{
			PDFMaxBytes:         10 << 20,
			SpreadsheetMaxBytes: 5 << 20,
			CSVMaxBytes:         2 << 20,
			TextMaxBytes:        1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}
