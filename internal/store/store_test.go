package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/chatsync/internal/room"
)

var testRoom = room.ID("chat_1_2")

func msgAt(id int64, sender int, content string, ts time.Time) Message {
	return Message{
		ID:          id,
		RoomID:      testRoom,
		SenderID:    sender,
		ContentType: ContentText,
		Content:     content,
		Timestamp:   ts,
	}
}

func TestInsertSortedByTimestamp(t *testing.T) {
	s := New(0)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	s.Insert(msgAt(2, 1, "second", base.Add(2*time.Second)))
	s.Insert(msgAt(1, 1, "first", base))
	s.Insert(msgAt(3, 2, "third", base.Add(5*time.Second)))
	// out-of-order arrival lands between first and second
	s.Insert(msgAt(4, 2, "between", base.Add(time.Second)))

	got := s.Messages(testRoom)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"first", "between", "second", "third"},
		[]string{got[0].Content, got[1].Content, got[2].Content, got[3].Content})
}

func TestInsertEqualTimestampsKeepArrivalOrder(t *testing.T) {
	s := New(0)
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.Insert(msgAt(1, 1, "a", ts))
	s.Insert(msgAt(2, 1, "b", ts))
	s.Insert(msgAt(3, 1, "c", ts))

	got := s.Messages(testRoom)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"},
		[]string{got[0].Content, got[1].Content, got[2].Content})
}

func TestInsertDedupesByID(t *testing.T) {
	s := New(0)
	ts := time.Now().UTC()
	assert.True(t, s.Insert(msgAt(7, 1, "hello", ts)))
	assert.False(t, s.Insert(msgAt(7, 1, "hello", ts)))
	assert.Equal(t, 1, s.Len(testRoom))
}

func TestReconcileDoesNotGrowRoom(t *testing.T) {
	s := New(0)
	ts := time.Now().UTC()
	local := Message{
		LocalToken:  "tok-1",
		RoomID:      testRoom,
		SenderID:    1,
		ContentType: ContentText,
		Content:     "hi",
		Timestamp:   ts,
		Pending:     true,
	}
	s.Insert(local)
	require.Equal(t, 1, s.Len(testRoom))

	echo := msgAt(42, 1, "hi", ts.Add(50*time.Millisecond))
	assert.True(t, s.Reconcile(testRoom, "tok-1", echo))
	assert.Equal(t, 1, s.Len(testRoom))

	got := s.Messages(testRoom)
	assert.EqualValues(t, 42, got[0].ID)
	assert.False(t, got[0].Pending)
}

func TestReconcileUnknownTokenFalls(t *testing.T) {
	s := New(0)
	echo := msgAt(42, 1, "hi", time.Now().UTC())
	assert.False(t, s.Reconcile(testRoom, "missing", echo))
	assert.Equal(t, 0, s.Len(testRoom))
}

func TestReconcileLoose(t *testing.T) {
	s := New(0)
	ts := time.Now().UTC()
	s.Insert(Message{
		LocalToken: "tok-2", RoomID: testRoom, SenderID: 3,
		ContentType: ContentText, Content: "yo", Timestamp: ts, Pending: true,
	})
	echo := msgAt(9, 3, "yo", ts)
	assert.True(t, s.ReconcileLoose(testRoom, echo))
	assert.Equal(t, 1, s.Len(testRoom))
	assert.EqualValues(t, 9, s.Messages(testRoom)[0].ID)
}

func TestMarkEditedUnknownIDIsNoop(t *testing.T) {
	s := New(0)
	s.Insert(msgAt(1, 1, "a", time.Now().UTC()))

	var changes int
	s.Subscribe(func(Change) { changes++ })

	assert.False(t, s.MarkEdited(testRoom, 999, "edited", time.Now().UTC()))
	assert.Equal(t, 0, changes)
	assert.Equal(t, "a", s.Messages(testRoom)[0].Content)
}

func TestMarkEditedAndRead(t *testing.T) {
	s := New(0)
	s.Insert(msgAt(1, 1, "a", time.Now().UTC()))

	now := time.Now().UTC()
	require.True(t, s.MarkEdited(testRoom, 1, "a2", now))
	require.True(t, s.MarkRead(testRoom, 1, now))
	// second read receipt is a no-op
	assert.False(t, s.MarkRead(testRoom, 1, now))

	m := s.Messages(testRoom)[0]
	assert.Equal(t, "a2", m.Content)
	require.NotNil(t, m.EditedAt)
	require.NotNil(t, m.ReadAt)
}

func TestExpireIdempotent(t *testing.T) {
	s := New(0)
	s.Insert(msgAt(1, 1, "gone soon", time.Now().UTC()))

	var removed int
	s.Subscribe(func(c Change) {
		if c.Kind == ChangeRemoved {
			removed++
		}
	})

	assert.True(t, s.Expire(testRoom, 1, ""))
	assert.False(t, s.Expire(testRoom, 1, ""))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, s.Len(testRoom))
}

func TestEvictRoom(t *testing.T) {
	s := New(0)
	s.Insert(msgAt(1, 1, "a", time.Now().UTC()))
	other := room.ID("group_5")
	m := msgAt(2, 1, "b", time.Now().UTC())
	m.RoomID = other
	s.Insert(m)

	s.EvictRoom(testRoom)
	assert.Equal(t, 0, s.Len(testRoom))
	assert.Equal(t, 1, s.Len(other))
}

func TestRoomCapTrims(t *testing.T) {
	s := New(3)
	base := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		s.Insert(msgAt(int64(i), 1, "m", base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, 3, s.Len(testRoom))
	got := s.Messages(testRoom)
	assert.EqualValues(t, 3, got[0].ID)
	assert.EqualValues(t, 5, got[2].ID)
}

func TestChangeNotificationsFireInOrder(t *testing.T) {
	s := New(0)
	var kinds []ChangeKind
	s.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })

	now := time.Now().UTC()
	s.Insert(msgAt(1, 1, "a", now))
	s.MarkEdited(testRoom, 1, "a2", now)
	s.MarkRead(testRoom, 1, now)
	s.Expire(testRoom, 1, "")

	assert.Equal(t, []ChangeKind{ChangeInserted, ChangeUpdated, ChangeRead, ChangeRemoved}, kinds)
}
