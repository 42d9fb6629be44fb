package journal

import (
	"errors"
	"log/slog"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

type editRequest struct {
	Note string `json:"note"`
}

func RegisterRoutes(r fiber.Router, svc *Service, registry *tracking.Registry, authMiddleware fiber.Handler) {
	// saves the pending record; it is consumed only once the write succeeded
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		var req Annotation
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if req.Location != nil && !req.Location.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid location")
		}

		rec, err := registry.Recorder(runnerID)
		if err != nil {
			return httpError(err)
		}
		pending, err := rec.Pending(c.UserContext())
		if err != nil {
			return httpError(err)
		}

		entry, err := svc.Post(c.UserContext(), runnerID, req, pending)
		if err != nil {
			return httpError(err)
		}
		// a run finished meanwhile stays pending under its own id
		if _, err := rec.ConsumeRecord(c.UserContext(), pending.ID); err != nil {
			svc.logger.Warn("record saved but not consumed",
				slog.String("runner_id", runnerID), slog.String("record_id", pending.ID), slog.Any("err", err))
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		entries, err := svc.List(c.UserContext(), runnerID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(entries)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		var req editRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		entry, err := svc.EditNote(c.UserContext(), runnerID, c.Params("id"), req.Note)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(entry)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), runnerID, c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrPersistence), errors.Is(err, tracking.ErrRecorderClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, tracking.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, "no finished run to save")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
