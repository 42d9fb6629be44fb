package feed

import (
	"errors"
	"time"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

type positionRequest struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

type consentRequest struct {
	Granted *bool `json:"granted"`
}

type failureRequest struct {
	Message string `json:"message"`
}

// RegisterRoutes mounts the device-facing endpoints next to the tracking
// routes.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Post("/positions", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}

		accepted, err := hub.Publish(runnerID, tracking.PathPoint{
			Lat:        req.Lat,
			Lng:        req.Lng,
			AccuracyM:  req.AccuracyM,
			RecordedAt: req.RecordedAt,
		})
		if err != nil {
			return publishError(err)
		}
		if !accepted {
			return c.JSON(fiber.Map{"accepted": false})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
	})

	// device-side location failure, surfaced in the session status
	r.Post("/positions/failure", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		var req failureRequest
		if err := c.BodyParser(&req); err != nil || req.Message == "" {
			return fiber.NewError(fiber.StatusBadRequest, "message required")
		}
		if err := hub.ForRunner(runnerID).Fail(errors.New(req.Message)); err != nil {
			return publishError(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Put("/consent", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		var req consentRequest
		if err := c.BodyParser(&req); err != nil || req.Granted == nil {
			return fiber.NewError(fiber.StatusBadRequest, "granted required")
		}
		hub.SetConsent(runnerID, *req.Granted)
		return c.JSON(fiber.Map{"granted": hub.Consent(runnerID)})
	})
}

func publishError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPosition):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotTracking):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
