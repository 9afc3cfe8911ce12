package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Individeveloper/StockPocket/internal/attach"
	"github.com/Individeveloper/StockPocket/internal/domain"
)

// CLI is the interactive terminal frontend.
type CLI struct {
	deps   *Deps
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	sess *domain.Session

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Deps   *Deps
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		deps:   cfg.Deps,
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until context is cancelled
// or the user quits.
func (c *CLI) Start(ctx context.Context) error {
	sess, err := c.deps.resume(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	c.sess = sess
	c.deps.setActive(ctx, sess.ID)

	fmt.Fprintln(c.out, "StockPocket CLI. Ask about stocks, attach documents, get answers.")
	fmt.Fprintf(c.out, "Session: %s. Type /help for commands, /quit to exit.\n", sess.Title)
	fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}
		if strings.HasPrefix(line, "/") {
			c.handleCommand(ctx, line)
			fmt.Fprint(c.out, "You> ")
			continue
		}

		c.startThinking()
		reply := c.deps.Turn(ctx, c.sess, line)
		c.stopThinking()
		c.printReply(reply.Text, reply.Citations)
		fmt.Fprint(c.out, "You> ")
	}
}

func (c *CLI) handleCommand(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Fprintln(c.out, `Commands:
  /new             start a new conversation
  /sessions        list saved conversations
  /open <n>        open a conversation by list number
  /search <query>  find conversations by title
  /attach <path>   stage a document for the next message
  /attachments     show staged documents
  /delete <n>      delete a conversation by list number
  /quit            exit`)

	case "/new":
		sess, err := c.deps.Store.Create(ctx, "")
		if err != nil {
			fmt.Fprintf(c.out, "cannot create session: %v\n", err)
			return
		}
		c.sess = sess
		c.deps.setActive(ctx, sess.ID)
		fmt.Fprintln(c.out, "Started a new conversation.")

	case "/sessions":
		c.printSessions(ctx, "")

	case "/search":
		if arg == "" {
			fmt.Fprintln(c.out, "usage: /search <query>")
			return
		}
		c.printSessions(ctx, arg)

	case "/open":
		sess := c.sessionByNumber(ctx, arg)
		if sess == nil {
			return
		}
		c.sess = sess
		c.deps.setActive(ctx, sess.ID)
		fmt.Fprintf(c.out, "Opened %q (%d messages).\n", sess.Title, len(sess.Messages))

	case "/delete":
		sess := c.sessionByNumber(ctx, arg)
		if sess == nil {
			return
		}
		if err := c.deps.Store.Delete(ctx, sess.ID); err != nil {
			fmt.Fprintf(c.out, "delete failed: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Deleted %q.\n", sess.Title)
		if c.sess != nil && c.sess.ID == sess.ID {
			fresh, err := c.deps.Store.Create(ctx, "")
			if err != nil {
				fmt.Fprintf(c.out, "cannot create session: %v\n", err)
				return
			}
			c.sess = fresh
			c.deps.setActive(ctx, fresh.ID)
		}

	case "/attach":
		if arg == "" {
			fmt.Fprintln(c.out, "usage: /attach <path>")
			return
		}
		att, err := attach.StageFile(arg, c.deps.Limits)
		if err != nil {
			fmt.Fprintf(c.out, "cannot attach: %v\n", err)
			return
		}
		c.sess.Attachments = append(c.sess.Attachments, att)
		fmt.Fprintf(c.out, "Attached %s (%s, %d bytes). It will be sent with your next message.\n",
			att.Name, att.Category, att.SizeBytes)

	case "/attachments":
		if len(c.sess.Attachments) == 0 {
			fmt.Fprintln(c.out, "No documents staged.")
			return
		}
		for _, a := range c.sess.Attachments {
			fmt.Fprintf(c.out, "  %s  %s  %d bytes\n", a.Name, a.Category, a.SizeBytes)
		}

	default:
		fmt.Fprintln(c.out, "Unknown command. Type /help for available commands.")
	}
}

// printSessions lists sessions newest first, numbering them for /open.
func (c *CLI) printSessions(ctx context.Context, query string) {
	var (
		list []*domain.Session
		err  error
	)
	if query == "" {
		list, err = c.deps.Store.ListAll(ctx)
	} else {
		list, err = c.deps.Store.Search(ctx, query)
	}
	if err != nil {
		fmt.Fprintf(c.out, "cannot list sessions: %v\n", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No conversations found.")
		return
	}
	domain.SortSessionsByUpdated(list)
	for i, s := range list {
		marker := " "
		if c.sess != nil && s.ID == c.sess.ID {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %2d. %-40s %3d messages  %s\n",
			marker, i+1, s.Title, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

// sessionByNumber resolves a /sessions list number back to a session.
func (c *CLI) sessionByNumber(ctx context.Context, arg string) *domain.Session {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		fmt.Fprintln(c.out, "expected a number from the /sessions list")
		return nil
	}
	list, err := c.deps.Store.ListAll(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "cannot list sessions: %v\n", err)
		return nil
	}
	domain.SortSessionsByUpdated(list)
	if n > len(list) {
		fmt.Fprintf(c.out, "no session %d, only %d exist\n", n, len(list))
		return nil
	}
	return list[n-1]
}

func (c *CLI) printReply(text string, citations []domain.Citation) {
	fmt.Fprint(c.out, "\r\033[K") // Clear spinner line
	fmt.Fprintln(c.out, "--- StockPocket ---")
	fmt.Fprintln(c.out, text)
	if len(citations) > 0 {
		fmt.Fprintln(c.out, "Sources:")
		for _, cit := range citations {
			fmt.Fprintf(c.out, "  - %s (%s)\n", cit.Title, cit.URI)
		}
	}
	fmt.Fprintln(c.out, "-------------------")
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func(stop chan struct{}) {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}
