// Package render formats Store state for terminals and chat surfaces.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

// Renderer writes messages and lists to a terminal. It is safe for
// concurrent use; each call's output is written as one block.
type Renderer struct {
	mu    sync.Mutex
	w     io.Writer
	meter *Meter

	user      *color.Color
	assistant *color.Color
	errText   *color.Color
	faint     *color.Color
	accent    *color.Color
}

// NewRenderer creates a Renderer writing to w. meter may be nil, in which
// case the status line carries no token count.
func NewRenderer(w io.Writer, meter *Meter, colored bool) *Renderer {
	r := &Renderer{
		w:         w,
		meter:     meter,
		user:      color.New(color.FgGreen, color.Bold),
		assistant: color.New(color.FgCyan, color.Bold),
		errText:   color.New(color.FgRed),
		faint:     color.New(color.FgHiBlack),
		accent:    color.New(color.FgYellow),
	}
	if !colored {
		for _, c := range []*color.Color{r.user, r.assistant, r.errText, r.faint, r.accent} {
			c.DisableColor()
		}
	}
	return r
}

// IsError reports whether msg is an in-thread report of a failed send.
func IsError(msg types.Message) bool {
	return msg.Role == types.RoleAssistant && strings.HasPrefix(msg.Content, "Error: ")
}

// Message prints one message with its trace and sources.
func (r *Renderer) Message(msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message(msg)
}

func (r *Renderer) message(msg types.Message) {
	switch msg.Role {
	case types.RoleUser:
		r.user.Fprint(r.w, "you> ")
		fmt.Fprintln(r.w, msg.Content)
		return
	case types.RoleSystem:
		r.faint.Fprintln(r.w, msg.Content)
		return
	}

	r.assistant.Fprint(r.w, "aletheia> ")
	if IsError(msg) {
		r.errText.Fprintln(r.w, msg.Content)
		return
	}
	fmt.Fprintln(r.w, msg.Content)

	if len(msg.ThinkingTrace) > 0 {
		r.faint.Fprintln(r.w, "  thinking:")
		for i, step := range msg.ThinkingTrace {
			r.faint.Fprintf(r.w, "    %s\n", StepLine(i, step))
		}
	}
	if len(msg.Sources) > 0 {
		r.accent.Fprintln(r.w, "  sources:")
		for i, src := range msg.Sources {
			r.accent.Fprintf(r.w, "    [%d] ", i+1)
			fmt.Fprintln(r.w, SourceLine(src))
			if src.Content != "" {
				r.faint.Fprintf(r.w, "        %s\n", Snippet(src.Content, DefaultSnippetChars))
			}
		}
	}
}

// Messages prints a whole thread.
func (r *Renderer) Messages(msgs []types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.message(m)
	}
}

// Conversations prints the numbered conversation list, marking the active one.
func (r *Renderer) Conversations(list []types.Conversation, active types.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(list) == 0 {
		r.faint.Fprintln(r.w, "no conversations yet")
		return
	}
	for i, c := range list {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		r.accent.Fprintf(r.w, "%s%3d ", marker, i+1)
		fmt.Fprint(r.w, ConversationTitle(c))
		if c.UpdatedAt != "" {
			r.faint.Fprintf(r.w, "  %s", c.UpdatedAt)
		}
		fmt.Fprintln(r.w)
	}
}

// Status prints the flags of snap and the token size of the active thread.
func (r *Renderer) Status(snap state.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faint.Fprintln(r.w, StatusLine(snap, r.meter))
}

// Info prints a dim informational line.
func (r *Renderer) Info(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faint.Fprintf(r.w, format+"\n", args...)
}

// Error prints an error line.
func (r *Renderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errText.Fprintf(r.w, "error: %v\n", err)
}

// StepLine renders one thinking step.
func StepLine(i int, step types.ThinkingStep) string {
	n := step.Step
	if n == 0 {
		n = i + 1
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d.", n)
	if step.Action != "" {
		fmt.Fprintf(&b, " %s:", step.Action)
	}
	fmt.Fprintf(&b, " %s", step.Description)
	if step.Confidence > 0 {
		fmt.Fprintf(&b, " (%.2f)", step.Confidence)
	}
	return b.String()
}

// SourceLine renders a source as "Title - URL".
func SourceLine(src types.Source) string {
	switch {
	case src.Title != "" && src.URL != "":
		return src.Title + " - " + src.URL
	case src.URL != "":
		return src.URL
	default:
		return src.Title
	}
}

// ConversationTitle falls back to the id for untitled conversations.
func ConversationTitle(c types.Conversation) string {
	if strings.TrimSpace(c.Title) == "" {
		return "Untitled (" + string(c.ID) + ")"
	}
	return c.Title
}

// StatusLine summarizes the session flags.
func StatusLine(snap state.Snapshot, meter *Meter) string {
	active := "new conversation"
	if !snap.ActiveConversationID.IsNew() {
		active = "conversation " + string(snap.ActiveConversationID)
		if c, ok := snap.Conversation(snap.ActiveConversationID); ok {
			active = ConversationTitle(c)
		}
	}
	parts := []string{
		active,
		fmt.Sprintf("%d messages", len(snap.Messages)),
		"search " + onOff(snap.SearchEnabled),
		"sidebar " + onOff(snap.SidebarOpen),
	}
	if meter != nil {
		parts = append(parts, fmt.Sprintf("~%d tokens", meter.CountMessages(snap.Messages)))
	}
	if snap.ExchangeInFlight {
		parts = append(parts, "waiting for reply")
	}
	return strings.Join(parts, " | ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// PlainMessage renders a message as plain text for chat surfaces without
// ANSI colors.
func PlainMessage(msg types.Message) string {
	var b strings.Builder
	b.WriteString(msg.Content)
	if IsError(msg) {
		return b.String()
	}
	if len(msg.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for i, src := range msg.Sources {
			fmt.Fprintf(&b, "\n[%d] %s", i+1, SourceLine(src))
		}
	}
	return b.String()
}
