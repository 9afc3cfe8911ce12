// Package agent drives conversation turns: assemble context, dispatch to
// the AI backend, resolve the tool round, extract citations. A turn can
// degrade but never throw; every failure ends in a categorized fallback
// reply.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/metrics"
	"github.com/Individeveloper/StockPocket/internal/tool"
)

const (
	defaultTemperature      = 0.3
	defaultMaxParallelTools = 4
	defaultRateBurst        = 5
	defaultRatePerMinute    = 30.0
)

// Orchestrator owns the dispatch pipeline for one AI backend and one tool
// registry. It is stateless across turns; callers hand it history.
type Orchestrator struct {
	provider  domain.Provider
	tools     *tool.Registry
	fallbacks *Fallbacks
	limiter   *Limiter
	logger    *slog.Logger

	temperature      float64
	systemExtra      string
	maxParallelTools int
	now              func() time.Time
}

// Config holds the orchestrator dependencies and tuning knobs.
type Config struct {
	Provider          domain.Provider
	Tools             *tool.Registry
	Fallbacks         *Fallbacks
	Logger            *slog.Logger
	Temperature       float64
	SystemPromptExtra string
	MaxParallelTools  int
	RateBurst         int
	RatePerMinute     float64
}

func New(cfg Config) *Orchestrator {
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxParallel := cfg.MaxParallelTools
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallelTools
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	fallbacks := cfg.Fallbacks
	if fallbacks == nil {
		fallbacks = DefaultFallbacks()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		provider:         cfg.Provider,
		tools:            cfg.Tools,
		fallbacks:        fallbacks,
		limiter:          NewLimiter(burst, perMinute),
		logger:           logger,
		temperature:      temperature,
		systemExtra:      cfg.SystemPromptExtra,
		maxParallelTools: maxParallel,
		now:              time.Now,
	}
}

// Reply is the outcome of one completed turn.
type Reply struct {
	Text      string
	Citations []domain.Citation
}

// Respond runs one conversation turn and always returns a usable reply.
// Provider and infrastructure failures are classified and rendered as a
// fallback message rather than surfaced as errors.
func (o *Orchestrator) Respond(ctx context.Context, history []domain.Message, text string, atts []domain.Attachment) Reply {
	metrics.TurnsTotal.Inc()

	reply, err := o.respond(ctx, history, text, atts)
	if err != nil {
		category := Classify(err)
		o.logger.Error("turn failed", "category", category, "error", err)
		metrics.TurnFailures.Inc()
		return Reply{Text: o.fallbacks.Message(category)}
	}
	return reply
}

// respond is the five-step pipeline: assemble context, dispatch, resolve
// the single tool round, dispatch again, extract citations.
func (o *Orchestrator) respond(ctx context.Context, history []domain.Message, text string, atts []domain.Attachment) (Reply, error) {
	contents := assembleContents(history, text, atts)
	req := domain.GenerateRequest{
		Contents:          contents,
		SystemInstruction: o.systemInstruction(),
		Temperature:       o.temperature,
		Tools:             o.tools.Definitions(),
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return Reply{}, fmt.Errorf("rate limit: %w", err)
	}
	first, err := o.provider.Generate(ctx, req)
	if err != nil {
		return Reply{}, fmt.Errorf("initial dispatch: %w", err)
	}
	o.logger.Debug("initial dispatch done",
		"latency_ms", first.LatencyMs,
		"tool_calls", len(first.ToolCalls),
		"tokens", first.Usage.TotalTokens,
	)

	if !first.HasToolCalls() {
		return Reply{Text: o.finalText(first), Citations: citationsFrom(first.Grounding)}, nil
	}

	results := o.resolveAll(ctx, first.ToolCalls)

	followup := req
	followup.Contents = append(append([]domain.Content{}, contents...), modelTurn(first), functionTurn(results))

	if err := o.limiter.Wait(ctx); err != nil {
		return Reply{}, fmt.Errorf("rate limit: %w", err)
	}
	second, err := o.provider.Generate(ctx, followup)
	if err != nil {
		return Reply{}, fmt.Errorf("final dispatch: %w", err)
	}

	// One tool round per turn. Whatever the model asks for now is not
	// pursued; the turn closes on this response's text.
	if second.HasToolCalls() {
		o.logger.Warn("tool calls after the resolution round, not pursued", "count", len(second.ToolCalls))
	}

	return Reply{Text: o.finalText(second), Citations: citationsFrom(second.Grounding)}, nil
}

// resolveAll executes the round's tool calls with bounded parallelism and
// returns results in call order.
func (o *Orchestrator) resolveAll(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	o.logger.Info("resolving tool calls", "count", len(calls))

	results := make([]domain.ToolResult, len(calls))
	sem := make(chan struct{}, o.maxParallelTools)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc domain.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = o.tools.Resolve(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// finalText returns the response text, or the no-answer fallback when the
// model closed the turn without any.
func (o *Orchestrator) finalText(resp *domain.GenerateResponse) string {
	if strings.TrimSpace(resp.Text) != "" {
		return resp.Text
	}
	o.logger.Warn("model returned no answer text", "finish_reason", resp.FinishReason)
	return o.fallbacks.Message(CategoryNoAnswer)
}

// assembleContents maps stored history plus the new user turn into the
// backend content shape. Placeholder messages are UI artifacts and stay
// local; history attachments already informed earlier turns and travel as
// text context only, while the new turn carries its documents inline.
func assembleContents(history []domain.Message, text string, atts []domain.Attachment) []domain.Content {
	contents := make([]domain.Content, 0, len(history)+1)
	for _, m := range history {
		if m.IsPlaceholder || strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, domain.Content{Role: role, Parts: []domain.Part{{Text: m.Text}}})
	}

	parts := make([]domain.Part, 0, 1+len(atts))
	parts = append(parts, domain.Part{Text: text})
	for _, a := range atts {
		parts = append(parts, domain.Part{InlineData: &domain.Blob{MimeType: a.MimeType, Data: a.Base64Content}})
	}
	contents = append(contents, domain.Content{Role: "user", Parts: parts})
	return contents
}

// modelTurn reconstructs the model's tool-calling turn for the follow-up
// request.
func modelTurn(resp *domain.GenerateResponse) domain.Content {
	parts := make([]domain.Part, 0, len(resp.ToolCalls)+1)
	if resp.Text != "" {
		parts = append(parts, domain.Part{Text: resp.Text})
	}
	for i := range resp.ToolCalls {
		parts = append(parts, domain.Part{FunctionCall: &resp.ToolCalls[i]})
	}
	return domain.Content{Role: "model", Parts: parts}
}

// functionTurn carries resolved results back, in the order the calls were
// made so the backend can correlate them.
func functionTurn(results []domain.ToolResult) domain.Content {
	parts := make([]domain.Part, 0, len(results))
	for i := range results {
		parts = append(parts, domain.Part{FunctionResponse: &results[i]})
	}
	return domain.Content{Role: "function", Parts: parts}
}

// citationsFrom maps grounding chunks to display citations, deduplicated
// by URI. A missing title falls back to the source host so the UI always
// has a label to render.
func citationsFrom(chunks []domain.GroundingChunk) []domain.Citation {
	if len(chunks) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(chunks))
	out := make([]domain.Citation, 0, len(chunks))
	for _, ch := range chunks {
		uri := strings.TrimSpace(ch.URI)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = hostOf(uri)
		}
		out = append(out, domain.Citation{URI: uri, Title: title})
	}
	return out
}

func hostOf(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Host != "" {
		return u.Host
	}
	return uri
}
