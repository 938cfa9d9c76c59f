// internal/state/store.go
package state

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/user/aletheia/internal/types"
)

// Preferences are the UI-only flags that survive restarts and sign-out.
type Preferences struct {
	SearchEnabled bool `json:"search_enabled"`
	SidebarOpen   bool `json:"sidebar_open"`
}

// DefaultPreferences returns the preferences of a first start.
func DefaultPreferences() Preferences {
	return Preferences{SidebarOpen: true}
}

// Snapshot is an immutable copy of the Store taken under its lock.
type Snapshot struct {
	Conversations        []types.Conversation
	ActiveConversationID types.ConversationID
	Messages             []types.Message
	ExchangeInFlight     bool
	SearchEnabled        bool
	SidebarOpen          bool

	// Epoch advances whenever the message list is rebound to another
	// conversation (switch or reset).
	Epoch uint64
	// Version advances on every mutation.
	Version uint64
}

// Preferences extracts the persisted subset of the snapshot.
func (s Snapshot) Preferences() Preferences {
	return Preferences{SearchEnabled: s.SearchEnabled, SidebarOpen: s.SidebarOpen}
}

// Message looks up a message by id in the active list.
func (s Snapshot) Message(id types.MessageID) (types.Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return types.Message{}, false
}

// Conversation looks up a conversation by id in the list.
func (s Snapshot) Conversation(id types.ConversationID) (types.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return types.Conversation{}, false
}

// Listener receives a snapshot after each mutation. Listeners run on the
// mutating goroutine after the lock is released and may read the Store.
// Under concurrent mutation they can observe versions out of order; compare
// Snapshot.Version to drop stale ones.
type Listener func(Snapshot)

type subscriber struct {
	id string
	fn Listener
}

// Store holds the client state for one signed-in user: conversation list,
// active conversation, its messages and the UI flags. It never performs I/O.
type Store struct {
	mu            sync.RWMutex
	conversations []types.Conversation
	active        types.ConversationID
	messages      []types.Message
	inFlight      bool
	prefs         Preferences
	epoch         uint64
	version       uint64

	subMu       sync.RWMutex
	subscribers []subscriber
}

// NewStore creates an empty Store seeded with the given preferences.
func NewStore(prefs Preferences) *Store {
	return &Store{
		conversations: []types.Conversation{},
		messages:      []types.Message{},
		prefs:         prefs,
	}
}

// Subscribe registers fn for change notifications. The returned function
// removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	id := uuid.New().String()

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscriber) bool {
			return sub.id == id
		})
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Conversations:        slices.Clone(s.conversations),
		ActiveConversationID: s.active,
		Messages:             slices.Clone(s.messages),
		ExchangeInFlight:     s.inFlight,
		SearchEnabled:        s.prefs.SearchEnabled,
		SidebarOpen:          s.prefs.SidebarOpen,
		Epoch:                s.epoch,
		Version:              s.version,
	}
}

// ActiveConversationID returns the active conversation, empty for a new one.
func (s *Store) ActiveConversationID() types.ConversationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ExchangeInFlight reports whether a send is between dispatch and resolution.
func (s *Store) ExchangeInFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// SearchEnabled reports the search request flag.
func (s *Store) SearchEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.SearchEnabled
}

// Epoch returns the current switch epoch.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// update applies fn under the write lock and notifies subscribers when fn
// reports a change.
func (s *Store) update(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.RLock()
	subs := slices.Clone(s.subscribers)
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

// ReplaceConversations overwrites the conversation list verbatim.
func (s *Store) ReplaceConversations(list []types.Conversation) {
	s.update(func() bool {
		s.conversations = cloneOrEmpty(list)
		return true
	})
}

// SetActiveConversation rebinds the store to id (empty for a new
// conversation) and clears the message list in the same transition.
func (s *Store) SetActiveConversation(id types.ConversationID) {
	s.update(func() bool {
		s.active = id
		s.messages = []types.Message{}
		s.epoch++
		return true
	})
}

// ReplaceMessages overwrites the message list verbatim.
func (s *Store) ReplaceMessages(list []types.Message) {
	s.update(func() bool {
		s.messages = cloneOrEmpty(list)
		return true
	})
}

// SwitchConversation sets id active and installs its history as a single
// transition, so no observer sees the new id with an empty or stale list.
func (s *Store) SwitchConversation(id types.ConversationID, history []types.Message) {
	s.update(func() bool {
		s.active = id
		s.messages = cloneOrEmpty(history)
		s.epoch++
		return true
	})
}

// SwitchConversationIf is SwitchConversation guarded by epoch: it applies
// only if no other switch or reset happened since epoch was read.
func (s *Store) SwitchConversationIf(epoch uint64, id types.ConversationID, history []types.Message) bool {
	return s.update(func() bool {
		if s.epoch != epoch {
			return false
		}
		s.active = id
		s.messages = cloneOrEmpty(history)
		s.epoch++
		return true
	})
}

// AppendMessage appends msg to the end of the list. There is no dedupe by id.
func (s *Store) AppendMessage(msg types.Message) {
	s.update(func() bool {
		s.messages = append(s.messages, msg)
		return true
	})
}

// AppendIfCurrent appends msg only while the store is still bound to the
// given epoch and conversation. It reports whether the message was applied.
func (s *Store) AppendIfCurrent(epoch uint64, id types.ConversationID, msg types.Message) bool {
	return s.update(func() bool {
		if s.epoch != epoch || s.active != id {
			return false
		}
		s.messages = append(s.messages, msg)
		return true
	})
}

// BindConversation records the server-assigned id of the conversation the
// store is showing as new. Messages are kept. It is a no-op unless the store
// is still at epoch and still on a new conversation.
func (s *Store) BindConversation(epoch uint64, id types.ConversationID) bool {
	return s.update(func() bool {
		if s.epoch != epoch || !s.active.IsNew() || id.IsNew() {
			return false
		}
		s.active = id
		for i := range s.messages {
			if s.messages[i].ConversationID.IsNew() {
				s.messages[i].ConversationID = id
			}
		}
		return true
	})
}

// SetExchangeInFlight toggles the in-flight flag.
func (s *Store) SetExchangeInFlight(inFlight bool) {
	s.update(func() bool {
		if s.inFlight == inFlight {
			return false
		}
		s.inFlight = inFlight
		return true
	})
}

// ToggleSearchEnabled flips the search flag and returns the new value.
func (s *Store) ToggleSearchEnabled() bool {
	var v bool
	s.update(func() bool {
		s.prefs.SearchEnabled = !s.prefs.SearchEnabled
		v = s.prefs.SearchEnabled
		return true
	})
	return v
}

// ToggleSidebar flips the sidebar flag and returns the new value.
func (s *Store) ToggleSidebar() bool {
	var v bool
	s.update(func() bool {
		s.prefs.SidebarOpen = !s.prefs.SidebarOpen
		v = s.prefs.SidebarOpen
		return true
	})
	return v
}

// Reset drops all server-derived state and the in-flight flag. Preferences
// are left as they are.
func (s *Store) Reset() {
	s.update(func() bool {
		s.conversations = []types.Conversation{}
		s.active = ""
		s.messages = []types.Message{}
		s.inFlight = false
		s.epoch++
		return true
	})
}

func cloneOrEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return slices.Clone(list)
}
