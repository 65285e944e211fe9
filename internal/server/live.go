package server

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func registerLiveRoutes(r fiber.Router, s *Server) {
	r.Use("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/live", websocket.New(func(c *websocket.Conn) {
		client := s.Stream.Register(s.Cfg.Channel)
		defer s.Stream.Unregister(client)

		// the current state first, so a new viewer need not wait for the next event
		if payload, err := json.Marshal(s.Session.Snapshot()); err == nil {
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		s.Stream.Unregister(client)
		<-done
	}))
}
