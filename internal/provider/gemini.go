// Package provider implements the AI backend clients. There is one
// production backend, the Gemini generateContent REST API, spoken
// directly over HTTP with typed request and response structs.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/metrics"
)

const (
	defaultGeminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// Gemini implements domain.Provider against the generateContent endpoint.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultGeminiAPIBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		apiBase: base,
		model:   model,
		client:  newHTTPClient(cfg.Timeout),
		logger:  logger,
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Healthy(ctx context.Context) error {
	if placeholderKey(g.apiKey) {
		return domain.ErrMissingAPIKey
	}
	endpoint := fmt.Sprintf("%s/models/%s?key=%s", g.apiBase, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("gemini rejected key: %w", domain.ErrMissingAPIKey)
	default:
		return fmt.Errorf("gemini returned %d", resp.StatusCode)
	}
}

// Wire types for the generateContent contract.

type genRequest struct {
	Contents          []genContent   `json:"contents"`
	SystemInstruction *genContent    `json:"systemInstruction,omitempty"`
	Tools             []genToolGroup `json:"tools,omitempty"`
	GenerationConfig  *genGenConfig  `json:"generationConfig,omitempty"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text             string           `json:"text,omitempty"`
	InlineData       *genBlob         `json:"inlineData,omitempty"`
	FunctionCall     *genFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *genFunctionResp `json:"functionResponse,omitempty"`
}

type genBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type genFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type genFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type genToolGroup struct {
	FunctionDeclarations []genFunctionDecl `json:"functionDeclarations"`
}

type genFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type genGenConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type genResponse struct {
	Candidates []struct {
		Content           genContent `json:"content"`
		FinishReason      string     `json:"finishReason"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type genErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Gemini) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	if placeholderKey(g.apiKey) {
		return nil, fmt.Errorf("gemini: %w", domain.ErrMissingAPIKey)
	}

	body := genRequest{Contents: make([]genContent, 0, len(req.Contents))}
	for _, c := range req.Contents {
		body.Contents = append(body.Contents, toWireContent(c))
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &genContent{Parts: []genPart{{Text: req.SystemInstruction}}}
	}
	if len(req.Tools) > 0 {
		group := genToolGroup{FunctionDeclarations: make([]genFunctionDecl, 0, len(req.Tools))}
		for _, t := range req.Tools {
			group.FunctionDeclarations = append(group.FunctionDeclarations, genFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		body.Tools = []genToolGroup{group}
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		body.GenerationConfig = &genGenConfig{Temperature: &temp}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.apiBase, url.PathEscape(g.model), url.QueryEscape(g.apiKey))

	start := time.Now()
	metrics.AIRequests.Inc()
	resp, err := doWithRetry(ctx, g.client, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}, g.logger)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()
	metrics.AILatency.ObserveSince(start)

	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError(resp)
	}

	var genResp genResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := &domain.GenerateResponse{
		LatencyMs: time.Since(start).Milliseconds(),
		Usage: domain.Usage{
			PromptTokens: genResp.UsageMetadata.PromptTokenCount,
			OutputTokens: genResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  genResp.UsageMetadata.TotalTokenCount,
		},
	}
	if len(genResp.Candidates) == 0 {
		out.FinishReason = "STOP"
		return out, nil
	}

	cand := genResp.Candidates[0]
	out.FinishReason = cand.FinishReason

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			text.WriteString(p.Text)
		}
		if p.FunctionCall != nil {
			args := p.FunctionCall.Args
			if args == nil {
				args = make(map[string]any)
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				Name:      p.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	out.Text = text.String()

	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			out.Grounding = append(out.Grounding, domain.GroundingChunk{
				URI:   chunk.Web.URI,
				Title: chunk.Web.Title,
			})
		}
	}

	return out, nil
}

// statusError maps non-200 responses to classified errors: 401/403 mean a
// bad key, 429 means quota. Everything else keeps status and body.
func (g *Gemini) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(raw))
	var eb genErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		message = eb.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("gemini %d: %s: %w", resp.StatusCode, message, domain.ErrMissingAPIKey)
	case http.StatusTooManyRequests:
		return fmt.Errorf("gemini %d: %s: %w", resp.StatusCode, message, domain.ErrQuotaExhausted)
	default:
		return fmt.Errorf("gemini %d: %s", resp.StatusCode, message)
	}
}

func toWireContent(c domain.Content) genContent {
	out := genContent{Role: c.Role, Parts: make([]genPart, 0, len(c.Parts))}
	for _, p := range c.Parts {
		wp := genPart{Text: p.Text}
		if p.InlineData != nil {
			wp.InlineData = &genBlob{MimeType: p.InlineData.MimeType, Data: p.InlineData.Data}
		}
		if p.FunctionCall != nil {
			wp.FunctionCall = &genFunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Arguments}
		}
		if p.FunctionResponse != nil {
			wp.FunctionResponse = &genFunctionResp{Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Payload}
		}
		out.Parts = append(out.Parts, wp)
	}
	return out
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
