// Package server is the reference relay: a fiber app exposing the /ws
// realtime channel plus the REST endpoints the sync client talks to. All
// state is in memory; redis is optional and adds presence plus cross-instance
// fan-out.
package server

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/config"
	"github.com/fathima-sithara/chatsync/internal/transport"
)

// Server bundles the relay's parts behind one fiber app.
type Server struct {
	App      *fiber.App
	Hub      *Hub
	State    *State
	presence *Presence
	logger   *zap.SugaredLogger
}

func New(cfg *config.Config, logger *zap.SugaredLogger) *Server {
	hub := NewHub()
	state := NewState()

	var presence *Presence
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		presence = NewPresence(rdb, cfg.Redis.Prefix)
		hub.PublishToOtherInstances = presence.Publish
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})

	rl := NewIPRateLimiter(cfg.Server.RatePerMinute, logger)
	app.Use(rl.Handler())

	rest := NewRESTHandler(state, hub, cfg.Server.UploadDir, cfg.Server.AskUpstreamURL, logger)
	registerRoutes(app, rest)

	ws := NewWSHandler(hub, state, presence, logger)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(ws.Handle))

	return &Server{App: app, Hub: hub, State: state, presence: presence, logger: logger}
}

func registerRoutes(app *fiber.App, rest *RESTHandler) {
	app.Post("/ask", rest.Ask)
	app.Get("/get_chat_history", rest.GetChatHistory)
	app.Get("/load_chat/:name", rest.LoadChat)
	app.Get("/start_new_chat/:name", rest.StartNewChat)
	app.Post("/delete_history", rest.DeleteHistory)
	app.Post("/upload_file", rest.UploadFile)
	app.Post("/edit_message/:id", rest.EditMessage)
	app.Post("/set_disappear_timer/:id", rest.SetDisappearTimer)
}

// Run blocks serving until ctx is cancelled, then shuts the app down. When
// redis is configured it also forwards frames published by peer instances
// into the local hub.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.presence != nil {
		go func() {
			err := s.presence.Subscribe(ctx, func(room string, payload []byte) {
				var env transport.Envelope
				if err := json.Unmarshal(payload, &env); err != nil {
					return
				}
				s.Hub.deliverLocal(room, env)
			})
			if err != nil && ctx.Err() == nil {
				s.logger.Warnf("pubsub subscribe: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.App.Listen(addr)
	}()
	select {
	case <-ctx.Done():
		return s.App.Shutdown()
	case err := <-errCh:
		return err
	}
}
