package stream

import (
	"backend-runtracker/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the live feed. Only the runner named in the path may
// subscribe to it.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	r.Get("/ws/:runnerID", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		if runnerID != c.Params("runnerID") {
			return fiber.NewError(fiber.StatusForbidden, "cannot follow another runner")
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		l := hub.Register(c.Params("runnerID"))
		defer hub.Unregister(l)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range l.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		// the read loop only detects the client going away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(l)
		<-done
	}))
}
