package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/service"
	"github.com/coachcall/api/internal/store"
	"github.com/coachcall/api/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// serviceError maps service and store errors to API errors.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrCallNotFound):
		return response.NotFound(c, "Call not found")
	case errors.Is(err, store.ErrPromptNotFound):
		return response.NotFound(c, "Prompt not found")
	case errors.Is(err, store.ErrCallExists):
		return response.Conflict(c, "Call already exists")
	case errors.Is(err, service.ErrCallInErrorState):
		return response.Conflict(c, model.MsgCallInErrorState)
	case errors.Is(err, service.ErrReportNotReady):
		return response.Conflict(c, "Call analysis not completed yet")
	case errors.Is(err, service.ErrStorageUnavailable):
		return response.Unavailable(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
