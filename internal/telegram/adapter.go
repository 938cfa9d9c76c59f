package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/render"
	"github.com/user/aletheia/internal/types"
)

const maxTelegramMessage = 4096

// TargetPrefix is the delivery prefix for Telegram chats ("telegram:<chat id>").
const TargetPrefix = "telegram:"

const helpText = "Available: /new, /list, /open <n>, /delete <n>, /search, /status"

// sender is the part of the bot API the adapter uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram chats to chat sessions. Each Telegram chat gets
// its own Store and Controller from the pool.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	out    sender
	pool   *chat.Pool
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Telegram adapter. pool may be nil for an adapter that only
// delivers through SendTo and is never started.
func New(token string, pool *chat.Pool) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, pool)
	a.bot = bot
	return a, nil
}

func newAdapter(out sender, pool *chat.Pool) *Adapter {
	return &Adapter{
		out:    out,
		pool:   pool,
		logger: slog.Default().With("component", "telegram"),
	}
}

// Start begins long-polling for Telegram updates. It returns when ctx is
// done and in-progress exchanges have finished.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	defer a.wg.Wait()

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// Handle commands
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID
	ctrl := a.pool.Get(buildChatKey(chatID))

	// Exchanges can take minutes; keep polling meanwhile.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := a.out.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			a.logger.Debug("chat action failed", "error", err)
		}
		ex := ctrl.Send(ctx, text)
		switch ex.Status {
		case chat.ExchangeRejected:
			a.sendResponse(chatID, "Still working on your previous question.")
		case chat.ExchangeDiscarded:
			a.logger.Debug("reply discarded", "chat_id", chatID, "seq", ex.Seq)
		default:
			a.sendResponse(chatID, render.PlainMessage(ex.Reply))
		}
	}()
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	ctrl := a.pool.Get(buildChatKey(chatID))
	store := ctrl.Store()

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I'm Aletheia, a research assistant. Ask me anything.\n"+helpText)

	case "new":
		ctrl.StartNewConversation()
		a.sendResponse(chatID, "Started a new conversation.")

	case "list":
		if err := ctrl.RefreshConversations(ctx); err != nil {
			a.logger.Warn("list conversations failed", "chat_id", chatID, "error", err)
		}
		a.sendResponse(chatID, conversationList(store.Snapshot().Conversations, store.ActiveConversationID()))

	case "open", "delete":
		conv, ok := pick(store.Snapshot().Conversations, msg.CommandArguments())
		if !ok {
			a.sendResponse(chatID, "Use /list, then /"+msg.Command()+" <number>.")
			return
		}
		if msg.Command() == "delete" {
			if err := ctrl.DeleteConversation(ctx, conv.ID); err != nil {
				a.sendResponse(chatID, "Could not delete conversation: "+err.Error())
				return
			}
			a.sendResponse(chatID, "Deleted \""+render.ConversationTitle(conv)+"\".")
			return
		}
		if err := ctrl.OpenConversation(ctx, conv.ID); err != nil {
			a.sendResponse(chatID, "Could not open conversation: "+err.Error())
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Opened \"%s\" (%d messages).",
			render.ConversationTitle(conv), len(store.Snapshot().Messages)))

	case "search":
		if store.ToggleSearchEnabled() {
			a.sendResponse(chatID, "Web search enabled.")
		} else {
			a.sendResponse(chatID, "Web search disabled.")
		}

	case "status":
		a.sendResponse(chatID, render.StatusLine(store.Snapshot(), nil))

	default:
		a.sendResponse(chatID, "Unknown command. "+helpText)
	}
}

// SendTo delivers a reply to the chat named by target ("telegram:<chat id>").
// It is registered with the delivery registry under TargetPrefix.
func (a *Adapter) SendTo(_ context.Context, target string, reply types.Message) error {
	chatID, err := parseTarget(target)
	if err != nil {
		return err
	}
	a.sendResponse(chatID, render.PlainMessage(reply))
	return nil
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.out.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.out.Send(msg); err != nil {
				a.logger.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func conversationList(list []types.Conversation, active types.ConversationID) string {
	if len(list) == 0 {
		return "No conversations yet."
	}
	var b strings.Builder
	for i, c := range list {
		marker := ""
		if c.ID == active {
			marker = " (open)"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, render.ConversationTitle(c), marker)
	}
	return strings.TrimRight(b.String(), "\n")
}

// pick resolves a 1-based list index.
func pick(list []types.Conversation, arg string) (types.Conversation, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > len(list) {
		return types.Conversation{}, false
	}
	return list[n-1], true
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		end := maxTelegramMessage
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}

func buildChatKey(chatID int64) types.ChatKey {
	return types.NewChatKey("telegram", strconv.FormatInt(chatID, 10))
}

func parseTarget(target string) (int64, error) {
	raw := strings.TrimPrefix(target, TargetPrefix)
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram target %q: %w", target, err)
	}
	return chatID, nil
}
