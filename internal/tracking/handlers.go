package tracking

import (
	"errors"

	"backend-runtracker/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, registry *Registry, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := recorderFor(c, registry)
		if err != nil {
			return err
		}
		if err := rec.Start(c.UserContext()); err != nil {
			return httpError(err)
		}
		status, err := rec.Status(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(status)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := recorderFor(c, registry)
		if err != nil {
			return err
		}
		record, err := rec.Stop(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(record)
	})

	r.Get("/status", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := recorderFor(c, registry)
		if err != nil {
			return err
		}
		status, err := rec.Status(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(status)
	})

	r.Get("/pending", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := recorderFor(c, registry)
		if err != nil {
			return err
		}
		record, err := rec.Pending(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(record)
	})

	// consume discards the pending record without saving it
	r.Post("/consume", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := recorderFor(c, registry)
		if err != nil {
			return err
		}
		record, err := rec.Consume(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		return c.JSON(record)
	})
}

func recorderFor(c *fiber.Ctx, registry *Registry) (*Recorder, error) {
	runnerID, err := auth.RunnerID(c)
	if err != nil {
		return nil, err
	}
	rec, err := registry.Recorder(runnerID)
	if err != nil {
		return nil, httpError(err)
	}
	return rec, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrSubscription):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, ErrRecorderClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
