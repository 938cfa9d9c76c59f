package render

import (
	"sync"

	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

// ThreadView prints the active thread incrementally from Store
// notifications. Subscribe its Update method to a Store.
type ThreadView struct {
	r *Renderer

	// EchoUser prints user messages as they are appended. Terminals that
	// already show the typed line leave it off.
	EchoUser bool

	mu       sync.Mutex
	version  uint64
	epoch    uint64
	printed  int
	inFlight bool
}

// NewThreadView creates a view writing through r. It assumes a fresh Store;
// call Prime first when attaching to one that already has state.
func NewThreadView(r *Renderer) *ThreadView {
	return &ThreadView{r: r}
}

// Prime marks everything in snap as already shown.
func (v *ThreadView) Prime(snap state.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version = snap.Version
	v.epoch = snap.Epoch
	v.printed = len(snap.Messages)
	v.inFlight = snap.ExchangeInFlight
}

// Update renders whatever snap adds to what has been printed so far.
// Snapshots older than the last one seen are ignored.
func (v *ThreadView) Update(snap state.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if snap.Version <= v.version {
		return
	}
	v.version = snap.Version

	if snap.Epoch != v.epoch {
		v.epoch = snap.Epoch
		v.printed = 0
		if len(snap.Messages) > 0 {
			v.r.Info("-- %s --", StatusLine(snap, nil))
			v.r.Messages(snap.Messages)
			v.printed = len(snap.Messages)
		}
	}

	// A bind relabels messages without changing the count.
	for _, m := range snap.Messages[min(v.printed, len(snap.Messages)):] {
		if m.Role == types.RoleUser && !v.EchoUser {
			continue
		}
		v.r.Message(m)
	}
	v.printed = len(snap.Messages)

	if snap.ExchangeInFlight && !v.inFlight {
		v.r.Info("thinking…")
	}
	v.inFlight = snap.ExchangeInFlight
}
