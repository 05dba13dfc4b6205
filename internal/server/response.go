package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/pkg/models"
)

// SendSuccess writes the uniform success envelope.
func SendSuccess(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(models.APIResponse{
		Status: "success",
		Data:   data,
	})
}

// SendError writes a general error response.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithType(c, status, message, models.GeneralErrorType)
}

// SendErrorWithType writes an error response with an explicit error type.
func SendErrorWithType(c *fiber.Ctx, status int, message string, errType models.ErrorType) error {
	return c.Status(status).JSON(models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Message: message,
			Type:    errType,
		},
	})
}
