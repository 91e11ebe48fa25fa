package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/chatsync/internal/room"
	"github.com/fathima-sithara/chatsync/internal/store"
)

type fakeSurface struct {
	items    []store.Message
	read     map[int64]bool
	distance int
	scrolls  int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{read: make(map[int64]bool)}
}

func (f *fakeSurface) Append(m store.Message) { f.items = append(f.items, m) }

func (f *fakeSurface) Update(m store.Message) {
	for i := range f.items {
		if f.items[i].ID == m.ID || (m.LocalToken != "" && f.items[i].LocalToken == m.LocalToken) {
			f.items[i] = m
			return
		}
	}
}

func (f *fakeSurface) Remove(m store.Message) {
	for i := range f.items {
		if f.items[i].ID == m.ID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return
		}
	}
}

func (f *fakeSurface) SetRead(m store.Message) { f.read[m.ID] = true }
func (f *fakeSurface) Reset()                  { f.items = nil; f.read = map[int64]bool{} }
func (f *fakeSurface) DistanceFromBottom() int { return f.distance }
func (f *fakeSurface) ScrollToBottom()         { f.scrolls++; f.distance = 0 }

const r = room.ID("chat_1_2")

func seed(t *testing.T, st *store.Store, n int) {
	t.Helper()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.True(t, st.Insert(store.Message{
			ID: int64(i), RoomID: r, SenderID: 2,
			ContentType: store.ContentText, Content: "m",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func setup(t *testing.T) (*store.Store, *fakeSurface, *Reconciler) {
	st := store.New(0)
	surf := newFakeSurface()
	rec := New(surf, 4)
	seed(t, st, 5)
	rec.Bind(st)
	rec.SetRoom(st, r)
	return st, surf, rec
}

func TestAutoScrollWhenAtBottom(t *testing.T) {
	st, surf, _ := setup(t)
	surf.distance = 0
	before := surf.scrolls

	st.Insert(store.Message{
		ID: 6, RoomID: r, SenderID: 2, ContentType: store.ContentText,
		Content: "new", Timestamp: time.Now().UTC(),
	})

	assert.Len(t, surf.items, 6)
	assert.Equal(t, before+1, surf.scrolls)
}

func TestNoScrollWhenScrolledUp(t *testing.T) {
	st, surf, _ := setup(t)
	surf.distance = 200
	before := surf.scrolls

	st.Insert(store.Message{
		ID: 6, RoomID: r, SenderID: 2, ContentType: store.ContentText,
		Content: "new", Timestamp: time.Now().UTC(),
	})

	assert.Len(t, surf.items, 6)
	assert.Equal(t, before, surf.scrolls)
	assert.Equal(t, 200, surf.distance)
}

func TestBottomToleranceAbsorbsRounding(t *testing.T) {
	st, surf, _ := setup(t)
	surf.distance = 3 // within tolerance
	before := surf.scrolls

	st.Insert(store.Message{
		ID: 6, RoomID: r, SenderID: 2, ContentType: store.ContentText,
		Content: "new", Timestamp: time.Now().UTC(),
	})
	assert.Equal(t, before+1, surf.scrolls)
}

func TestEditUpdatesInPlace(t *testing.T) {
	st, surf, _ := setup(t)
	st.MarkEdited(r, 3, "edited", time.Now().UTC())

	require.Len(t, surf.items, 5)
	assert.Equal(t, "edited", surf.items[2].Content)
	assert.NotNil(t, surf.items[2].EditedAt)
}

func TestExpiryRemoves(t *testing.T) {
	st, surf, _ := setup(t)
	st.Expire(r, 2, "")
	assert.Len(t, surf.items, 4)
}

func TestReadFlipsStatus(t *testing.T) {
	st, surf, _ := setup(t)
	st.MarkRead(r, 1, time.Now().UTC())
	assert.True(t, surf.read[1])
}

func TestOtherRoomChangesIgnored(t *testing.T) {
	st, surf, _ := setup(t)
	st.Insert(store.Message{
		ID: 99, RoomID: "group_7", SenderID: 5,
		ContentType: store.ContentText, Content: "elsewhere",
		Timestamp: time.Now().UTC(),
	})
	assert.Len(t, surf.items, 5)
}

func TestSetRoomRepaintsSnapshot(t *testing.T) {
	st, surf, rec := setup(t)
	other := room.ID("group_7")
	st.Insert(store.Message{
		ID: 50, RoomID: other, SenderID: 5,
		ContentType: store.ContentText, Content: "hi",
		Timestamp: time.Now().UTC(),
	})

	rec.SetRoom(st, other)
	require.Len(t, surf.items, 1)
	assert.EqualValues(t, 50, surf.items[0].ID)
}
