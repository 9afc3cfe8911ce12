// Package market talks to the external financial data providers. Every
// method fails soft: provider errors, bad payloads and a missing API key
// all come back as empty results so a broken data feed degrades an answer
// instead of killing the turn.
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

const (
	defaultAPIBase   = "https://financialmodelingprep.com/api/v3"
	responseMaxBytes = 4 * 1024 * 1024
)

// Client is the typed gateway to the market data provider. Endpoints are
// plain GETs authenticated by an apikey query parameter.
type Client struct {
	apiKey  string
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

// Config configures the market data client.
type Config struct {
	APIKey  string
	APIBase string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		apiBase: base,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether the client holds a usable API key. Without one
// no network call is ever made.
func (c *Client) Enabled() bool {
	return !placeholderKey(c.apiKey)
}

// Quote returns the latest price snapshot, or nil when unavailable.
func (c *Client) Quote(ctx context.Context, symbol string) *Quote {
	var out []Quote
	if !c.getList(ctx, "/quote/"+url.PathEscape(normalizeSymbol(symbol)), nil, &out) || len(out) == 0 {
		return nil
	}
	return &out[0]
}

// Profile returns the company profile, or nil when unavailable.
func (c *Client) Profile(ctx context.Context, symbol string) *CompanyProfile {
	var out []CompanyProfile
	if !c.getList(ctx, "/profile/"+url.PathEscape(normalizeSymbol(symbol)), nil, &out) || len(out) == 0 {
		return nil
	}
	return &out[0]
}

// IncomeStatements returns up to limit reporting periods, newest first.
func (c *Client) IncomeStatements(ctx context.Context, symbol string, period Period, limit int) []IncomeStatement {
	var out []IncomeStatement
	c.getList(ctx, "/income-statement/"+url.PathEscape(normalizeSymbol(symbol)), statementParams(period, limit), &out)
	return out
}

// BalanceSheets returns up to limit reporting periods, newest first.
func (c *Client) BalanceSheets(ctx context.Context, symbol string, period Period, limit int) []BalanceSheet {
	var out []BalanceSheet
	c.getList(ctx, "/balance-sheet-statement/"+url.PathEscape(normalizeSymbol(symbol)), statementParams(period, limit), &out)
	return out
}

// CashFlows returns up to limit reporting periods, newest first.
func (c *Client) CashFlows(ctx context.Context, symbol string, period Period, limit int) []CashFlowStatement {
	var out []CashFlowStatement
	c.getList(ctx, "/cash-flow-statement/"+url.PathEscape(normalizeSymbol(symbol)), statementParams(period, limit), &out)
	return out
}

// KeyMetrics returns up to limit reporting periods of valuation ratios.
func (c *Client) KeyMetrics(ctx context.Context, symbol string, period Period, limit int) []KeyMetrics {
	var out []KeyMetrics
	c.getList(ctx, "/key-metrics/"+url.PathEscape(normalizeSymbol(symbol)), statementParams(period, limit), &out)
	return out
}

// SearchSymbol finds tickers matching a free-text query.
func (c *Client) SearchSymbol(ctx context.Context, query string, limit int) []SymbolMatch {
	params := url.Values{}
	params.Set("query", strings.TrimSpace(query))
	params.Set("limit", strconv.Itoa(clampLimit(limit, 10)))
	var out []SymbolMatch
	c.getList(ctx, "/search", params, &out)
	return out
}

// Movers returns one of the market boards: gainers, losers or actives.
func (c *Client) Movers(ctx context.Context, kind MoverKind) []Mover {
	path := "/stock_market/gainers"
	switch kind {
	case MoversLosers:
		path = "/stock_market/losers"
	case MoversActives:
		path = "/stock_market/actives"
	}
	var out []Mover
	c.getList(ctx, path, nil, &out)
	return out
}

// getList performs one authenticated GET and decodes a JSON array. All
// failure modes log a warning and report false; callers treat "no data"
// and "provider down" identically.
func (c *Client) getList(ctx context.Context, path string, params url.Values, out any) bool {
	if !c.Enabled() {
		return false
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	endpoint := c.apiBase + path + "?" + params.Encode()

	metrics.GatewayRequests.Inc()
	body, ok := c.fetch(ctx, endpoint, path)
	if !ok {
		return false
	}

	// Error payloads arrive as an object even on endpoints that return
	// arrays. Treat them as no data.
	if msg := embeddedError(body); msg != "" {
		c.logger.Warn("market provider returned error payload", "path", path, "message", msg)
		metrics.GatewayFailures.Inc()
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("market response decode failed", "path", path, "error", err)
		metrics.GatewayFailures.Inc()
		return false
	}
	return true
}

func (c *Client) fetch(ctx context.Context, endpoint, path string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("market request build failed", "path", path, "error", err)
		metrics.GatewayFailures.Inc()
		return nil, false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("market request failed", "path", path, "error", err)
		metrics.GatewayFailures.Inc()
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseMaxBytes))
	if err != nil {
		c.logger.Warn("market response read failed", "path", path, "error", err)
		metrics.GatewayFailures.Inc()
		return nil, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("market provider status", "path", path, "status", resp.StatusCode, "body", truncate(string(body), 200))
		metrics.GatewayFailures.Inc()
		return nil, false
	}
	return body, true
}

func statementParams(period Period, limit int) url.Values {
	params := url.Values{}
	params.Set("period", string(period.OrDefault()))
	params.Set("limit", strconv.Itoa(clampLimit(limit, 5)))
	return params
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 50 {
		return 50
	}
	return limit
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// embeddedError extracts provider error messages delivered inside a 200
// response, e.g. {"Error Message": "Invalid API KEY"}.
func embeddedError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return ""
	}
	var payload struct {
		ErrorMessage string `json:"Error Message"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.ErrorMessage != "" {
		return payload.ErrorMessage
	}
	return payload.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// placeholderKey reports keys that cannot possibly authenticate: empty,
// an unexpanded ${VAR} reference, or a template value never replaced.
func placeholderKey(key string) bool {
	k := strings.TrimSpace(key)
	if k == "" || strings.HasPrefix(k, "${") {
		return true
	}
	switch strings.ToUpper(k) {
	case "YOUR_API_KEY", "YOUR_API_KEY_HERE", "CHANGEME":
		return true
	}
	return false
}
