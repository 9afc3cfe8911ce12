package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Individeveloper/StockPocket/internal/attach"
	"github.com/Individeveloper/StockPocket/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramFileTimeout    = 60 * time.Second
)

// Telegram is the bot frontend. Each chat gets its own session thread;
// documents sent to the bot are staged on that session and travel with the
// next question.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string

	deps   *Deps
	bot    *tgbotapi.BotAPI
	files  *http.Client
	logger *slog.Logger

	sessMu   sync.Mutex
	sessions map[int64]*domain.Session
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	ParseMode string
	Deps      *Deps
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		deps:      cfg.Deps,
		files:     &http.Client{Timeout: telegramFileTimeout},
		logger:    cfg.Logger,
		sessions:  make(map[int64]*domain.Session),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until the context ends.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	if update.Message.Document != nil {
		t.handleDocument(ctx, chatID, update.Message)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if update.Message.IsCommand() {
		t.handleCommand(ctx, chatID, update.Message)
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	t.runTurn(ctx, chatID, text)
}

// runTurn resolves the chat's session, runs the turn, and renders the
// reply with its citations.
func (t *Telegram) runTurn(ctx context.Context, chatID int64, text string) {
	sess, err := t.sessionFor(ctx, chatID)
	if err != nil {
		t.logger.Error("cannot open session", "chat_id", chatID, "error", err)
		t.sendMessage(chatID, "Something went wrong opening your conversation. Please try again.")
		return
	}

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	reply := t.deps.Turn(ctx, sess, text)

	out := reply.Text
	if len(reply.Citations) > 0 {
		var b strings.Builder
		b.WriteString(out)
		b.WriteString("\n\nSources:\n")
		for _, cit := range reply.Citations {
			fmt.Fprintf(&b, "- %s: %s\n", cit.Title, cit.URI)
		}
		out = b.String()
	}
	t.sendMessage(chatID, out)
}

// handleDocument downloads a sent file, stages it on the chat's session,
// and runs a turn immediately when the document carries a caption.
func (t *Telegram) handleDocument(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	doc := msg.Document
	cat := attach.DetectCategory(doc.FileName, doc.MimeType)
	// Telegram does not always report a size; the post-download check decides.
	if doc.FileSize > 0 {
		if err := attach.ValidateSize(doc.FileName, cat, int64(doc.FileSize), t.deps.Limits); err != nil {
			t.sendMessage(chatID, fmt.Sprintf("Cannot accept %s: %v", doc.FileName, err))
			return
		}
	}

	sess, err := t.sessionFor(ctx, chatID)
	if err != nil {
		t.logger.Error("cannot open session", "chat_id", chatID, "error", err)
		t.sendMessage(chatID, "Something went wrong opening your conversation. Please try again.")
		return
	}

	data, err := t.downloadFile(ctx, doc.FileID)
	if err != nil {
		t.logger.Warn("telegram file download failed", "file", doc.FileName, "error", err)
		t.sendMessage(chatID, fmt.Sprintf("Could not download %s. Please try sending it again.", doc.FileName))
		return
	}
	if err := attach.ValidateSize(doc.FileName, cat, int64(len(data)), t.deps.Limits); err != nil {
		t.sendMessage(chatID, fmt.Sprintf("Cannot accept %s: %v", doc.FileName, err))
		return
	}

	att := attach.Stage(doc.FileName, doc.MimeType, "telegram:"+doc.FileID, data)
	sess.Attachments = append(sess.Attachments, att)
	t.logger.Info("document staged",
		"chat_id", chatID,
		"name", att.Name,
		"category", att.Category,
		"size", att.SizeBytes,
	)

	caption := strings.TrimSpace(msg.Caption)
	if caption != "" {
		t.runTurn(ctx, chatID, caption)
		return
	}
	t.sendMessage(chatID, fmt.Sprintf("Got %s. Ask me something about it.", doc.FileName))
}

func (t *Telegram) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.files.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, t.deps.Limits.PDFMaxBytes+1))
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "Hello! I'm StockPocket, your market research assistant.\n\nAsk me about stock prices, company financials, or market news. Send a document (PDF, spreadsheet, CSV) and I'll read it.\n\nCommands:\n/new - Start a new conversation\n/sessions - List your conversations\n/status - Bot status\n/help - Show this message")
	case "help":
		t.sendMessage(chatID, "Ask me anything about stocks and markets:\n- \"How is BBCA doing?\"\n- \"Compare AAPL and MSFT revenue\"\n- \"Any news on the energy sector?\"\n\nSend a document with a caption and I'll answer using it.\n\nCommands:\n/new - New conversation\n/sessions - List conversations\n/status - Bot status")
	case "new":
		sess, err := t.deps.Store.Create(ctx, "")
		if err != nil {
			t.sendMessage(chatID, "Could not start a new conversation.")
			return
		}
		t.sessMu.Lock()
		t.sessions[chatID] = sess
		t.sessMu.Unlock()
		t.sendMessage(chatID, "Started a new conversation.")
	case "sessions":
		list, err := t.deps.Store.ListAll(ctx)
		if err != nil || len(list) == 0 {
			t.sendMessage(chatID, "No saved conversations.")
			return
		}
		domain.SortSessionsByUpdated(list)
		var b strings.Builder
		b.WriteString("Your conversations:\n")
		for i, s := range list {
			if i == 10 {
				fmt.Fprintf(&b, "... and %d more\n", len(list)-i)
				break
			}
			fmt.Fprintf(&b, "%d. %s (%d messages)\n", i+1, s.Title, len(s.Messages))
		}
		t.sendMessage(chatID, b.String())
	case "status":
		t.sendMessage(chatID, fmt.Sprintf("StockPocket is up.\n\nBot: @%s\nYour ID: %d\nChat ID: %d", t.bot.Self.UserName, msg.From.ID, chatID))
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

// sessionFor returns the chat's session, reusing the cached one or
// creating a fresh thread for new chats.
func (t *Telegram) sessionFor(ctx context.Context, chatID int64) (*domain.Session, error) {
	t.sessMu.Lock()
	defer t.sessMu.Unlock()

	if sess, ok := t.sessions[chatID]; ok {
		return sess, nil
	}
	sess, err := t.deps.Store.Create(ctx, "")
	if err != nil {
		return nil, err
	}
	t.sessions[chatID] = sess
	return sess, nil
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	// Telegram has a 4096 char limit per message
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// splitMessage breaks text into chunks of at most maxLen, preferring to cut
// at a newline in the second half of the chunk.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try Markdown first, on parse error fallback to plain text, then
// retry with backoff.
func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}
		// On subsequent attempts: send as plain text (parse mode may be malformed).

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		// Handle Telegram rate limiting (HTTP 429).
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		// Markdown parse error on first attempt: immediately retry as plain text.
		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
			// Plain also failed; fall through to backoff loop.
		}

		// Exponential backoff for other transient errors.
		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	}
}
