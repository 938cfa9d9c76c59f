package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/config"
	"github.com/user/aletheia/internal/render"
	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

const tokenPollInterval = 2 * time.Second

const chatHelp = `Commands:
  /new           start a new conversation
  /list          list conversations
  /open <n>      open conversation n from /list
  /delete <n>    delete conversation n from /list
  /refresh       reload the conversation list
  /search        toggle web search
  /sidebar       toggle the conversation list after each switch
  /status        show session status
  /quit          exit`

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Bool("search", false, "enable web search for this session")
	chatCmd.Flags().String("conversation", "", "open an existing conversation by id")
	chatCmd.Flags().Bool("no-color", false, "disable colored output")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the research agent interactively",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

// newMeter returns the configured token meter, or nil if the encoding is
// unavailable.
func newMeter(cfg *config.Config) *render.Meter {
	meter, err := render.NewMeter(cfg.Render.TokenizerModel)
	if err != nil {
		slog.Warn("token meter disabled", "model", cfg.Render.TokenizerModel, "error", err)
		return nil
	}
	return meter
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prefsStore, prefs := loadPrefs(cfg)
	if search, _ := cmd.Flags().GetBool("search"); search {
		prefs.SearchEnabled = true
	}
	store := state.NewStore(prefs)
	defer prefsStore.Persist(store)()

	backend := newBackend(cfg)
	creds := newSupplier(cfg)
	ctrl := chat.New(store, backend, creds)

	noColor, _ := cmd.Flags().GetBool("no-color")
	r := render.NewRenderer(os.Stdout, newMeter(cfg), !noColor)
	view := render.NewThreadView(r)
	view.Prime(store.Snapshot())
	defer store.Subscribe(view.Update)()

	g, gctx := errgroup.WithContext(ctx)
	if watchesTokenFile(cfg) {
		g.Go(func() error {
			creds.WatchFile(gctx, tokenPath(cfg), tokenPollInterval)
			return nil
		})
	}

	ctrl.Start(gctx)
	defer ctrl.Close()

	r.Info("Connected to %s", backend.Location())
	if _, ok := creds.Credential(ctx); !ok {
		r.Info("Not signed in. Run `aletheia login` to see saved conversations.")
	}
	r.Info("Type a message and press Enter. /help for commands. Ctrl+C to quit.")

	if id, _ := cmd.Flags().GetString("conversation"); id != "" {
		if err := ctrl.OpenConversation(gctx, types.ConversationID(id)); err != nil {
			r.Error(err)
		}
	}

	lines := readLines(os.Stdin)
	s := &chatSession{ctrl: ctrl, r: r, g: g, ctx: gctx}

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !s.handle(line) {
				break loop
			}
		}
	}

	cancel()
	err := g.Wait()
	fmt.Println("\nGoodbye!")
	return err
}

// readLines feeds stdin lines into a channel that is closed at EOF. The
// reader cannot be interrupted, so it is left running on exit.
func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			slog.Error("read input failed", "error", err)
		}
	}()
	return lines
}

// chatSession dispatches REPL input. Network work runs on the errgroup so
// the prompt stays responsive while a reply is pending.
type chatSession struct {
	ctrl *chat.Controller
	r    *render.Renderer
	g    *errgroup.Group
	ctx  context.Context
}

// handle processes one input line. It returns false when the user quits.
func (s *chatSession) handle(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if !strings.HasPrefix(input, "/") {
		s.send(input)
		return true
	}

	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	store := s.ctrl.Store()

	switch name {
	case "/quit", "/exit", "/q":
		return false
	case "/help":
		s.r.Info("%s", chatHelp)
	case "/new":
		s.ctrl.StartNewConversation()
		s.r.Info("Started a new conversation.")
	case "/list":
		snap := store.Snapshot()
		s.r.Conversations(snap.Conversations, snap.ActiveConversationID)
	case "/open":
		conv, ok := pickConversation(store.Snapshot().Conversations, arg)
		if !ok {
			s.r.Info("Usage: /open <n> (see /list)")
			return true
		}
		s.g.Go(func() error {
			s.report(s.ctrl.OpenConversation(s.ctx, conv.ID))
			return nil
		})
	case "/delete":
		conv, ok := pickConversation(store.Snapshot().Conversations, arg)
		if !ok {
			s.r.Info("Usage: /delete <n> (see /list)")
			return true
		}
		s.g.Go(func() error {
			if err := s.ctrl.DeleteConversation(s.ctx, conv.ID); err != nil {
				s.report(err)
				return nil
			}
			s.r.Info("Deleted %s.", render.ConversationTitle(conv))
			return nil
		})
	case "/refresh":
		s.g.Go(func() error {
			if err := s.ctrl.RefreshConversations(s.ctx); err != nil {
				s.report(err)
				return nil
			}
			snap := store.Snapshot()
			s.r.Conversations(snap.Conversations, snap.ActiveConversationID)
			return nil
		})
	case "/search":
		s.r.Info("Web search %s.", onOff(store.ToggleSearchEnabled()))
	case "/sidebar":
		if store.ToggleSidebar() {
			snap := store.Snapshot()
			s.r.Conversations(snap.Conversations, snap.ActiveConversationID)
		} else {
			s.r.Info("Sidebar hidden.")
		}
	case "/status":
		s.r.Status(store.Snapshot())
	default:
		s.r.Info("Unknown command %s. /help for commands.", name)
	}
	return true
}

func (s *chatSession) send(text string) {
	s.g.Go(func() error {
		ex := s.ctrl.Send(s.ctx, text)
		switch ex.Status {
		case chat.ExchangeRejected:
			s.r.Info("Still waiting for the previous reply.")
		case chat.ExchangeDiscarded:
			s.r.Info("A reply arrived for a conversation you left. Reopen it to see the reply.")
		}
		return nil
	})
}

func (s *chatSession) report(err error) {
	if err == nil || errors.Is(err, chat.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	s.r.Error(err)
}

// pickConversation resolves a 1-based index from /list.
func pickConversation(list []types.Conversation, arg string) (types.Conversation, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		return types.Conversation{}, false
	}
	return list[n-1], true
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
