package storage

import (
	"errors"

	"backend-runtracker/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type photoRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/photos", authMiddleware, func(c *fiber.Ctx) error {
		runnerID, err := auth.RunnerID(c)
		if err != nil {
			return err
		}
		var body photoRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}

		upload, err := svc.PresignPhoto(c.UserContext(), runnerID, body.FileName, body.ContentType)
		switch {
		case errors.Is(err, ErrNotConfigured):
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		case errors.Is(err, ErrInvalidPhotoType):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(upload)
	})
}
