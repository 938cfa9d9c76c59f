package render

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

func TestSnippetPlainText(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("a\n  b\tc", 0))
}

func TestSnippetHTML(t *testing.T) {
	got := Snippet("<p>Hello <strong>world</strong></p>", 0)
	assert.Equal(t, "Hello **world**", got)
}

func TestSnippetTruncatesByRune(t *testing.T) {
	got := Snippet("ééééé", 3)
	assert.Equal(t, "ééé…", got)
}

func TestStepLine(t *testing.T) {
	assert.Equal(t, "1. search: looked it up (0.80)",
		StepLine(0, types.ThinkingStep{Step: 1, Action: "search", Description: "looked it up", Confidence: 0.8}))
	assert.Equal(t, "3. plain", StepLine(2, types.ThinkingStep{Description: "plain"}))
}

func TestSourceLine(t *testing.T) {
	assert.Equal(t, "Doc - https://x", SourceLine(types.Source{Title: "Doc", URL: "https://x"}))
	assert.Equal(t, "https://x", SourceLine(types.Source{URL: "https://x"}))
	assert.Equal(t, "Doc", SourceLine(types.Source{Title: "Doc"}))
}

func TestConversationTitleFallback(t *testing.T) {
	assert.Equal(t, "Untitled (c1)", ConversationTitle(types.Conversation{ID: "c1", Title: "  "}))
	assert.Equal(t, "Hi", ConversationTitle(types.Conversation{ID: "c1", Title: "Hi"}))
}

func TestRendererMessage(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil, false)

	r.Message(types.Message{Role: types.RoleUser, Content: "question"})
	r.Message(types.Message{
		Role:          types.RoleAssistant,
		Content:       "answer",
		ThinkingTrace: []types.ThinkingStep{{Step: 1, Description: "think"}},
		Sources:       []types.Source{{Title: "Doc", URL: "https://x", Content: "<b>bold</b>"}},
	})

	out := buf.String()
	assert.Contains(t, out, "you> question\n")
	assert.Contains(t, out, "aletheia> answer\n")
	assert.Contains(t, out, "1. think")
	assert.Contains(t, out, "[1] Doc - https://x")
	assert.Contains(t, out, "**bold**")
	assert.NotContains(t, out, "\x1b[")
}

func TestRendererErrorMessageSkipsExtras(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil, false)

	msg := types.Message{Role: types.RoleAssistant, Content: "Error: boom\n\nBackend is running at: http://x"}
	require.True(t, IsError(msg))
	r.Message(msg)
	r.Error(errors.New("nope"))

	assert.Contains(t, buf.String(), "aletheia> Error: boom")
	assert.Contains(t, buf.String(), "error: nope")
}

func TestRendererConversations(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil, false)

	r.Conversations(nil, "")
	assert.Contains(t, buf.String(), "no conversations yet")

	buf.Reset()
	r.Conversations([]types.Conversation{{ID: "a", Title: "First"}, {ID: "b", Title: "Second"}}, "b")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1 First")
	assert.NotContains(t, lines[0], "*")
	assert.Contains(t, lines[1], "*  2 Second")
}

func TestRendererKeepsBlocksTogether(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil, false)
	msg := types.Message{
		Role:          types.RoleAssistant,
		Content:       "answer",
		ThinkingTrace: []types.ThinkingStep{{Step: 1, Description: "think"}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Message(msg)
				r.Info("note %d", j)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8*50*4)
	for i, line := range lines {
		if line != "aletheia> answer" {
			continue
		}
		require.Less(t, i+2, len(lines))
		assert.Equal(t, "  thinking:", lines[i+1])
		assert.Equal(t, "    1. think", lines[i+2])
	}
}

func TestStatusLine(t *testing.T) {
	s := state.NewStore(state.DefaultPreferences())
	s.ReplaceConversations([]types.Conversation{{ID: "c1", Title: "Topic"}})
	s.SwitchConversation("c1", []types.Message{{Role: types.RoleUser, Content: "x"}})
	s.SetExchangeInFlight(true)

	line := StatusLine(s.Snapshot(), nil)
	assert.Equal(t, "Topic | 1 messages | search off | sidebar on | waiting for reply", line)
}

func TestPlainMessage(t *testing.T) {
	got := PlainMessage(types.Message{
		Role:    types.RoleAssistant,
		Content: "answer",
		Sources: []types.Source{{Title: "Doc", URL: "https://x"}},
	})
	assert.Equal(t, "answer\n\nSources:\n[1] Doc - https://x", got)
}

func TestMeterCount(t *testing.T) {
	m, err := NewMeter("gpt-4")
	require.NoError(t, err)

	assert.Zero(t, m.Count(""))
	assert.Positive(t, m.Count("hello world"))

	msgs := []types.Message{
		{Content: "hello world"},
		{Content: "again", ThinkingTrace: []types.ThinkingStep{{Description: "step"}}},
	}
	assert.Equal(t, m.Count("hello world")+m.Count("again")+m.Count("step"), m.CountMessages(msgs))
}

func TestMeterUnknownModelFallsBack(t *testing.T) {
	m, err := NewMeter("not-a-model")
	require.NoError(t, err)
	assert.Positive(t, m.Count("hello"))
}
