package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

func TestThreadViewFollowsStore(t *testing.T) {
	var buf bytes.Buffer
	view := NewThreadView(NewRenderer(&buf, nil, false))
	store := state.NewStore(state.DefaultPreferences())
	defer store.Subscribe(view.Update)()

	store.AppendMessage(types.Message{Role: types.RoleUser, Content: "typed"})
	store.SetExchangeInFlight(true)
	store.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "reply"})
	store.SetExchangeInFlight(false)

	out := buf.String()
	assert.NotContains(t, out, "you> typed")
	assert.Contains(t, out, "thinking…")
	assert.Contains(t, out, "aletheia> reply")
	assert.Equal(t, 1, strings.Count(out, "aletheia> reply"))
}

func TestThreadViewPrintsHistoryOnSwitch(t *testing.T) {
	var buf bytes.Buffer
	view := NewThreadView(NewRenderer(&buf, nil, false))
	view.EchoUser = true
	store := state.NewStore(state.DefaultPreferences())
	defer store.Subscribe(view.Update)()

	store.SwitchConversation("c1", []types.Message{
		{Role: types.RoleUser, Content: "old q"},
		{Role: types.RoleAssistant, Content: "old a"},
	})
	store.SetActiveConversation("")
	store.AppendMessage(types.Message{Role: types.RoleUser, Content: "fresh"})

	out := buf.String()
	assert.Contains(t, out, "conversation c1")
	assert.Contains(t, out, "you> old q")
	assert.Contains(t, out, "aletheia> old a")
	assert.Contains(t, out, "you> fresh")
}

func TestThreadViewIgnoresStaleSnapshots(t *testing.T) {
	var buf bytes.Buffer
	view := NewThreadView(NewRenderer(&buf, nil, false))
	store := state.NewStore(state.DefaultPreferences())

	store.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "one"})
	old := store.Snapshot()
	store.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "two"})

	view.Update(store.Snapshot())
	buf.Reset()
	view.Update(old)

	assert.Empty(t, buf.String())
}

func TestThreadViewPrime(t *testing.T) {
	var buf bytes.Buffer
	view := NewThreadView(NewRenderer(&buf, nil, false))
	store := state.NewStore(state.DefaultPreferences())
	store.SwitchConversation("c1", []types.Message{{Role: types.RoleAssistant, Content: "seen"}})

	view.Prime(store.Snapshot())
	defer store.Subscribe(view.Update)()
	store.AppendMessage(types.Message{Role: types.RoleAssistant, Content: "new"})

	assert.NotContains(t, buf.String(), "seen")
	assert.Contains(t, buf.String(), "aletheia> new")
}
