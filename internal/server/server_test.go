package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/config"
	"github.com/fathima-sithara/chatsync/internal/transport"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.UploadDir = t.TempDir()
	cfg.Server.RatePerMinute = 1_000_000
	return New(cfg, zap.NewNop().Sugar())
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App.Test(req, 5000)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, b
}

func TestAskAndHistoryLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodPost, "/ask", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ask struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(body, &ask))
	assert.Equal(t, "echo: hello", ask.Reply)

	resp, body = doJSON(t, s, http.MethodGet, "/get_chat_history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var names struct {
		ChatNames []string `json:"chat_names"`
	}
	require.NoError(t, json.Unmarshal(body, &names))
	assert.Equal(t, []string{"default"}, names.ChatNames)

	resp, body = doJSON(t, s, http.MethodGet, "/load_chat/default", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist struct {
		History []chatTurn `json:"history"`
	}
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist.History, 1)
	assert.Equal(t, "hello", hist.History[0].User)

	resp, _ = doJSON(t, s, http.MethodPost, "/delete_history", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = doJSON(t, s, http.MethodGet, "/get_chat_history", nil)
	require.NoError(t, json.Unmarshal(body, &names))
	assert.Empty(t, names.ChatNames)
}

func TestAskRejectsEmptyMessage(t *testing.T) {
	s := newTestServer(t)
	resp, _ := doJSON(t, s, http.MethodPost, "/ask", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditMessageNotFound(t *testing.T) {
	s := newTestServer(t)
	form := url.Values{"content": {"changed"}}
	req := httptest.NewRequest(http.MethodPost, "/edit_message/99", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.App.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEditMessageBroadcastsToRoom(t *testing.T) {
	s := newTestServer(t)

	id := s.State.addMessage(&messageRecord{
		Room:     "chat_1_2",
		SenderID: 1,
		Content:  "original",
	})
	member := newClient(2, "bea", nil)
	s.Hub.addClient(member)
	s.Hub.joinRoom("chat_1_2", 2)

	form := url.Values{"content": {"changed"}}
	req := httptest.NewRequest(http.MethodPost, "/edit_message/1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.App.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case env := <-member.send:
		assert.Equal(t, transport.EventMessageEdited, env.Event)
		var p transport.MessageEditedEvent
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, id, p.MessageID)
		assert.Equal(t, "changed", p.Content)
		assert.True(t, p.Edited)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestSetDisappearTimerBroadcastsAndForgets(t *testing.T) {
	s := newTestServer(t)

	s.State.addMessage(&messageRecord{Room: "group_4", SenderID: 1, Content: "soon gone"})
	member := newClient(3, "cam", nil)
	s.Hub.addClient(member)
	s.Hub.joinRoom("group_4", 3)

	form := url.Values{"timer": {"1"}}
	req := httptest.NewRequest(http.MethodPost, "/set_disappear_timer/1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.App.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case env := <-member.send:
		assert.Equal(t, transport.EventDisappearTimerSet, env.Event)
		var p transport.DisappearTimerEvent
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, 1, p.Timer)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}

	assert.Eventually(t, func() bool {
		_, ok := s.State.message(1)
		return !ok
	}, 3*time.Second, 50*time.Millisecond)
}

func TestUploadFile(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "pic.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.App.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out struct {
		FilePath string `json:"file_path"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, strings.HasPrefix(out.FilePath, "uploads/messages/"))
	assert.True(t, strings.HasSuffix(out.FilePath, "_pic.png"))
}

func TestHubRoomMembership(t *testing.T) {
	h := NewHub()
	a := newClient(1, "ann", nil)
	b := newClient(2, "bob", nil)
	h.addClient(a)
	h.addClient(b)
	h.joinRoom("chat_1_2", 1)
	h.joinRoom("chat_1_2", 2)

	h.broadcastToRoom(context.Background(), "chat_1_2", envelope(transport.EventTyping, transport.TypingEvent{UserID: 1, Room: "chat_1_2"}))
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)

	<-a.send
	<-b.send
	h.leaveRoom("chat_1_2", 2)
	h.broadcastToRoom(context.Background(), "chat_1_2", envelope(transport.EventTyping, transport.TypingEvent{UserID: 1, Room: "chat_1_2"}))
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 0)
}

func TestHubRemoveClientLeavesAllRooms(t *testing.T) {
	h := NewHub()
	a := newClient(1, "ann", nil)
	h.addClient(a)
	h.joinRoom("chat_1_2", 1)
	h.joinRoom("group_7", 1)

	h.removeClient(1)
	h.broadcastToRoom(context.Background(), "chat_1_2", envelope(transport.EventTyping, transport.TypingEvent{UserID: 2}))
	h.broadcastAll(envelope(transport.EventUserStatus, transport.UserStatusEvent{UserID: 2, Status: "online"}))

	_, open := <-a.send
	assert.False(t, open)
}
