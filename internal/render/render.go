// Package render maps message store changes onto a display surface as
// minimal deltas: append for inserts, in-place update for edits, removal
// for expiry, a status flip for read receipts.
package render

import (
	"sync"

	"github.com/fathima-sithara/chatsync/internal/room"
	"github.com/fathima-sithara/chatsync/internal/store"
)

// DefaultBottomTolerance absorbs subpixel layout rounding in the
// at-the-bottom test.
const DefaultBottomTolerance = 4

// Surface is the external display collaborator. Implementations are free to
// be a DOM, a terminal view, or a test double.
type Surface interface {
	Append(m store.Message)
	Update(m store.Message)
	Remove(m store.Message)
	SetRead(m store.Message)
	Reset()
	// DistanceFromBottom reports how far the viewport sits above the bottom
	// of the content, in surface units.
	DistanceFromBottom() int
	ScrollToBottom()
}

// Reconciler applies store changes for the bound room to the surface and
// owns the auto-scroll policy: only a viewport that was already at the
// bottom follows new content down.
type Reconciler struct {
	surface   Surface
	tolerance int

	mu   sync.Mutex
	room room.ID
}

func New(surface Surface, tolerance int) *Reconciler {
	if tolerance <= 0 {
		tolerance = DefaultBottomTolerance
	}
	return &Reconciler{surface: surface, tolerance: tolerance}
}

// Bind subscribes the reconciler to the store. Changes arrive synchronously
// within the mutating call, so render happens in the same task as the
// mutation.
func (r *Reconciler) Bind(st *store.Store) {
	st.Subscribe(r.Apply)
}

// SetRoom switches the bound room and repaints the surface from the store
// snapshot.
func (r *Reconciler) SetRoom(st *store.Store, id room.ID) {
	r.mu.Lock()
	r.room = id
	r.mu.Unlock()
	r.surface.Reset()
	for _, m := range st.Messages(id) {
		r.surface.Append(m)
	}
	r.surface.ScrollToBottom()
}

// Apply renders one change. Changes for rooms other than the bound one are
// ignored; the surface only ever shows the active conversation.
func (r *Reconciler) Apply(c store.Change) {
	r.mu.Lock()
	active := r.room
	r.mu.Unlock()
	if c.Room != active {
		return
	}

	atBottom := r.surface.DistanceFromBottom() <= r.tolerance

	switch c.Kind {
	case store.ChangeInserted:
		r.surface.Append(c.Message)
	case store.ChangeUpdated:
		r.surface.Update(c.Message)
	case store.ChangeRead:
		r.surface.SetRead(c.Message)
	case store.ChangeRemoved:
		r.surface.Remove(c.Message)
		return
	}

	if atBottom {
		r.surface.ScrollToBottom()
	}
}
