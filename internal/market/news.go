package market

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Individeveloper/StockPocket/internal/metrics"
)

const defaultNewsAPIBase = "https://api.marketaux.com/v1"

// NewsClient talks to the news provider. It is keyed separately from the
// market data provider so news can be disabled on its own; without a key
// every call returns empty and touches no network.
type NewsClient struct {
	apiKey  string
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

// NewsConfig configures the news client.
type NewsConfig struct {
	APIKey  string
	APIBase string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewNewsClient(cfg NewsConfig) *NewsClient {
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultNewsAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsClient{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		apiBase: base,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether the news feed is configured.
func (c *NewsClient) Enabled() bool {
	return !placeholderKey(c.apiKey)
}

// StockNews returns recent articles mentioning a symbol.
func (c *NewsClient) StockNews(ctx context.Context, symbol string, limit int) []Article {
	params := url.Values{}
	params.Set("symbols", normalizeSymbol(symbol))
	return c.query(ctx, params, limit)
}

// MacroNews searches articles by free-text query, for market-wide and
// macroeconomic questions not tied to one ticker.
func (c *NewsClient) MacroNews(ctx context.Context, query string, limit int) []Article {
	params := url.Values{}
	params.Set("search", strings.TrimSpace(query))
	return c.query(ctx, params, limit)
}

// newsEnvelope is the provider response wrapper. Articles sit under data;
// provider errors come back under error even with a 200 status.
type newsEnvelope struct {
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
		Entities    []struct {
			Symbol string `json:"symbol"`
		} `json:"entities"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *NewsClient) query(ctx context.Context, params url.Values, limit int) []Article {
	if !c.Enabled() {
		return nil
	}

	params.Set("limit", strconv.Itoa(clampLimit(limit, 10)))
	params.Set("language", "en,id")
	params.Set("api_token", c.apiKey)
	endpoint := c.apiBase + "/news/all?" + params.Encode()

	metrics.GatewayRequests.Inc()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("news request build failed", "error", err)
		metrics.GatewayFailures.Inc()
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("news request failed", "error", err)
		metrics.GatewayFailures.Inc()
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseMaxBytes))
	if err != nil {
		c.logger.Warn("news response read failed", "error", err)
		metrics.GatewayFailures.Inc()
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("news provider status", "status", resp.StatusCode, "body", truncate(string(body), 200))
		metrics.GatewayFailures.Inc()
		return nil
	}

	var envelope newsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Warn("news response decode failed", "error", err)
		metrics.GatewayFailures.Inc()
		return nil
	}
	if envelope.Error != nil {
		c.logger.Warn("news provider returned error payload", "code", envelope.Error.Code, "message", envelope.Error.Message)
		metrics.GatewayFailures.Inc()
		return nil
	}

	articles := make([]Article, 0, len(envelope.Data))
	for _, d := range envelope.Data {
		a := Article{
			Title:       d.Title,
			Description: d.Description,
			URL:         d.URL,
			Source:      d.Source,
			PublishedAt: d.PublishedAt,
		}
		if len(d.Entities) > 0 {
			a.Symbol = d.Entities[0].Symbol
		}
		articles = append(articles, a)
	}
	return articles
}
