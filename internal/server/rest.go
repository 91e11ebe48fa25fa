package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/transport"
)

// RESTHandler serves the message-mutation and assistant-history endpoints.
type RESTHandler struct {
	state       *State
	hub         *Hub
	logger      *zap.SugaredLogger
	uploadDir   string
	askUpstream string
	httpClient  *http.Client
}

func NewRESTHandler(s *State, h *Hub, uploadDir, askUpstream string, logger *zap.SugaredLogger) *RESTHandler {
	return &RESTHandler{
		state:       s,
		hub:         h,
		logger:      logger,
		uploadDir:   uploadDir,
		askUpstream: askUpstream,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

type askRequest struct {
	Message  string   `json:"message"`
	Mode     string   `json:"mode"`
	Models   []string `json:"models"`
	ChatName string   `json:"chat_name"`
}

// Ask answers a prompt, proxying to the configured upstream model endpoint
// when one is set and echoing deterministically otherwise.
func (h *RESTHandler) Ask(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"reply": "message missing"})
	}
	chatName := req.ChatName
	if chatName == "" {
		chatName = "default"
	}

	reply, err := h.answer(req)
	if err != nil {
		h.logger.Warnf("ask upstream: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream unavailable"})
	}
	h.state.appendTurn(chatName, chatTurn{User: req.Message, Bot: reply})
	return c.JSON(fiber.Map{"reply": reply})
}

func (h *RESTHandler) answer(req askRequest) (string, error) {
	if h.askUpstream == "" {
		return "echo: " + req.Message, nil
	}
	b, _ := json.Marshal(req)
	resp, err := h.httpClient.Post(h.askUpstream, "application/json", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (h *RESTHandler) GetChatHistory(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"chat_names": h.state.chatNames()})
}

func (h *RESTHandler) LoadChat(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"history": h.state.turns(c.Params("name"))})
}

func (h *RESTHandler) StartNewChat(c *fiber.Ctx) error {
	h.state.startChat(c.Params("name"))
	return c.JSON(fiber.Map{"message": "New chat started!"})
}

func (h *RESTHandler) DeleteHistory(c *fiber.Ctx) error {
	h.state.deleteChats()
	return c.JSON(fiber.Map{"message": "Chat history deleted!"})
}

// UploadFile stores an attachment and returns its relative path. The client
// sends this path inside the subsequent send_message event.
func (h *RESTHandler) UploadFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}
	name := uuid.New().String() + "_" + filepath.Base(fh.Filename)
	if err := c.SaveFile(fh, filepath.Join(h.uploadDir, name)); err != nil {
		h.logger.Errorf("save upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not save file"})
	}
	return c.JSON(fiber.Map{"file_path": "uploads/messages/" + name})
}

// EditMessage rewrites a delivered message and notifies the room.
func (h *RESTHandler) EditMessage(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}
	content := c.FormValue("content")
	if content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content required"})
	}
	rec, ok := h.state.editMessage(id, content)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	}
	h.hub.broadcastToRoom(c.Context(), rec.Room, envelope(transport.EventMessageEdited, transport.MessageEditedEvent{
		MessageID: rec.ID,
		Content:   rec.Content,
		Edited:    true,
		Room:      rec.Room,
	}))
	return c.JSON(fiber.Map{"message": "Message edited successfully!"})
}

// SetDisappearTimer arms a TTL on a delivered message and notifies the room.
// When the TTL fires the relay forgets the message, so later edits 404.
func (h *RESTHandler) SetDisappearTimer(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}
	seconds, err := strconv.Atoi(c.FormValue("timer"))
	if err != nil || seconds <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid timer"})
	}
	rec, ok := h.state.setDisappearTimer(id, seconds)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	}
	h.hub.broadcastToRoom(c.Context(), rec.Room, envelope(transport.EventDisappearTimerSet, transport.DisappearTimerEvent{
		MessageID: rec.ID,
		Timer:     seconds,
		Room:      rec.Room,
	}))
	time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		h.state.removeMessage(id)
	})
	return c.JSON(fiber.Map{"message": "Disappear timer set!"})
}
