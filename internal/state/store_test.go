// internal/state/store_test.go
package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/aletheia/internal/types"
)

func msg(id, content string, role types.Role) types.Message {
	return types.Message{
		ID:        types.MessageID(id),
		Role:      role,
		Content:   content,
		Timestamp: types.Now(),
	}.Normalize()
}

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore(DefaultPreferences())
	snap := s.Snapshot()

	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.Messages)
	assert.True(t, snap.ActiveConversationID.IsNew())
	assert.False(t, snap.ExchangeInFlight)
	assert.False(t, snap.SearchEnabled)
	assert.True(t, snap.SidebarOpen)
}

func TestReplaceConversationsVerbatim(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.ReplaceConversations([]types.Conversation{{ID: "a"}, {ID: "b"}})
	s.ReplaceConversations([]types.Conversation{{ID: "c", Title: "z"}, {ID: "a", Title: "y"}})

	snap := s.Snapshot()
	require.Len(t, snap.Conversations, 2)
	assert.Equal(t, types.ConversationID("c"), snap.Conversations[0].ID)
	assert.Equal(t, types.ConversationID("a"), snap.Conversations[1].ID)
}

func TestSetActiveConversationClearsMessages(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.SwitchConversation("a", []types.Message{msg("1", "x", types.RoleUser)})
	before := s.Epoch()

	s.SetActiveConversation("b")

	snap := s.Snapshot()
	assert.Equal(t, types.ConversationID("b"), snap.ActiveConversationID)
	assert.Empty(t, snap.Messages)
	assert.Greater(t, snap.Epoch, before)
}

func TestSetActiveConversationNotifiesClearedList(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.SwitchConversation("a", []types.Message{msg("1", "x", types.RoleUser)})

	var seen []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })
	defer unsubscribe()

	s.SetActiveConversation("b")

	require.Len(t, seen, 1)
	assert.Equal(t, types.ConversationID("b"), seen[0].ActiveConversationID)
	assert.Empty(t, seen[0].Messages)
}

func TestAppendPreservesOrderWithoutDedupe(t *testing.T) {
	s := NewStore(DefaultPreferences())
	m := msg("1", "first", types.RoleUser)
	s.AppendMessage(m)
	s.AppendMessage(msg("2", "second", types.RoleAssistant))
	s.AppendMessage(m)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "first", snap.Messages[0].Content)
	assert.Equal(t, "second", snap.Messages[1].Content)
	assert.Equal(t, "first", snap.Messages[2].Content)
}

func TestAppendThenFindRoundTrip(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.AppendMessage(msg("other", "x", types.RoleUser))
	m := types.Message{
		ID:             "target",
		ConversationID: "c1",
		Role:           types.RoleAssistant,
		Content:        "answer",
		ThinkingTrace:  []types.ThinkingStep{{Step: 1, Description: "Analyzing query"}},
		Sources:        []types.Source{{Title: "S", URL: "https://example.com"}},
		Timestamp:      "2024-01-01T00:00:00Z",
	}
	s.AppendMessage(m)

	snap := s.Snapshot()
	matches := 0
	for _, got := range snap.Messages {
		if got.ID == m.ID {
			matches++
			assert.Equal(t, m, got)
		}
	}
	assert.Equal(t, 1, matches)

	found, ok := snap.Message("target")
	require.True(t, ok)
	assert.Equal(t, m, found)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.AppendMessage(msg("1", "x", types.RoleUser))

	snap := s.Snapshot()
	snap.Messages[0].Content = "mutated"
	snap.Messages = append(snap.Messages, msg("2", "y", types.RoleUser))

	again := s.Snapshot()
	require.Len(t, again.Messages, 1)
	assert.Equal(t, "x", again.Messages[0].Content)
}

func TestAppendIfCurrent(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.SetActiveConversation("a")
	epoch := s.Epoch()

	assert.True(t, s.AppendIfCurrent(epoch, "a", msg("1", "x", types.RoleAssistant)))

	s.SetActiveConversation("b")
	assert.False(t, s.AppendIfCurrent(epoch, "a", msg("2", "late", types.RoleAssistant)))
	assert.Empty(t, s.Snapshot().Messages)

	// Switching back to the same id is a new epoch, so the stale reply still
	// does not land on the freshly loaded history.
	s.SetActiveConversation("a")
	assert.False(t, s.AppendIfCurrent(epoch, "a", msg("3", "late", types.RoleAssistant)))
	assert.Empty(t, s.Snapshot().Messages)
}

func TestSwitchConversationIf(t *testing.T) {
	s := NewStore(DefaultPreferences())
	epoch := s.Epoch()

	s.SetActiveConversation("other")
	applied := s.SwitchConversationIf(epoch, "c1", []types.Message{msg("m1", "hi", types.RoleUser)})
	assert.False(t, applied)
	assert.Equal(t, types.ConversationID("other"), s.ActiveConversationID())

	applied = s.SwitchConversationIf(s.Epoch(), "c1", []types.Message{msg("m1", "hi", types.RoleUser)})
	require.True(t, applied)
	snap := s.Snapshot()
	assert.Equal(t, types.ConversationID("c1"), snap.ActiveConversationID)
	assert.Len(t, snap.Messages, 1)
}

func TestBindConversation(t *testing.T) {
	s := NewStore(DefaultPreferences())
	epoch := s.Epoch()
	s.AppendMessage(msg("1", "hello", types.RoleUser))

	require.True(t, s.BindConversation(epoch, "new-id"))

	snap := s.Snapshot()
	assert.Equal(t, types.ConversationID("new-id"), snap.ActiveConversationID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, types.ConversationID("new-id"), snap.Messages[0].ConversationID)
	assert.Equal(t, epoch, snap.Epoch)

	// Already bound.
	assert.False(t, s.BindConversation(epoch, "other"))
}

func TestBindConversationAfterSwitchIsNoop(t *testing.T) {
	s := NewStore(DefaultPreferences())
	epoch := s.Epoch()
	s.SetActiveConversation("")

	assert.False(t, s.BindConversation(epoch, "new-id"))
	assert.True(t, s.Snapshot().ActiveConversationID.IsNew())
}

func TestSetExchangeInFlight(t *testing.T) {
	s := NewStore(DefaultPreferences())
	calls := 0
	defer s.Subscribe(func(Snapshot) { calls++ })()

	s.SetExchangeInFlight(true)
	s.SetExchangeInFlight(true)
	assert.True(t, s.ExchangeInFlight())
	s.SetExchangeInFlight(false)
	assert.False(t, s.ExchangeInFlight())

	assert.Equal(t, 2, calls, "unchanged flag should not notify")
}

func TestToggles(t *testing.T) {
	s := NewStore(DefaultPreferences())

	assert.True(t, s.ToggleSearchEnabled())
	assert.True(t, s.SearchEnabled())
	assert.False(t, s.ToggleSearchEnabled())

	assert.False(t, s.ToggleSidebar())
	assert.False(t, s.Snapshot().SidebarOpen)
}

func TestResetKeepsPreferences(t *testing.T) {
	s := NewStore(Preferences{SearchEnabled: true, SidebarOpen: false})
	s.ReplaceConversations([]types.Conversation{{ID: "a"}})
	s.SwitchConversation("a", []types.Message{msg("1", "x", types.RoleUser)})
	s.SetExchangeInFlight(true)

	s.Reset()

	snap := s.Snapshot()
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.Messages)
	assert.True(t, snap.ActiveConversationID.IsNew())
	assert.False(t, snap.ExchangeInFlight)
	assert.True(t, snap.SearchEnabled)
	assert.False(t, snap.SidebarOpen)
}

func TestUnsubscribe(t *testing.T) {
	s := NewStore(DefaultPreferences())
	calls := 0
	unsubscribe := s.Subscribe(func(Snapshot) { calls++ })

	s.ToggleSidebar()
	unsubscribe()
	unsubscribe()
	s.ToggleSidebar()

	assert.Equal(t, 1, calls)
}

func TestVersionIncreases(t *testing.T) {
	s := NewStore(DefaultPreferences())
	v0 := s.Snapshot().Version
	s.ToggleSearchEnabled()
	s.AppendMessage(msg("1", "x", types.RoleUser))
	assert.Equal(t, v0+2, s.Snapshot().Version)
}

func TestConcurrentAppends(t *testing.T) {
	s := NewStore(DefaultPreferences())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AppendMessage(msg(string(types.NewMessageID()), "x", types.RoleUser))
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot().Messages, 50)
}
