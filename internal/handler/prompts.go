package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/service"
	"github.com/coachcall/api/pkg/response"
)

type PromptHandler struct {
	calls     *service.CallService
	validator *validator.Validate
}

func NewPromptHandler(calls *service.CallService, v *validator.Validate) *PromptHandler {
	return &PromptHandler{calls: calls, validator: v}
}

// Upsert handles PUT /api/prompts
func (h *PromptHandler) Upsert(c *fiber.Ctx) error {
	var req model.UpsertPromptRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if err := h.calls.UpsertPrompt(c.UserContext(), &req); err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, fiber.Map{"call_type": req.CallType, "is_active": true})
}

// Get handles GET /api/prompts/:callType
func (h *PromptHandler) Get(c *fiber.Ctx) error {
	callType := c.Params("callType")

	prompt, err := h.calls.GetPrompt(c.UserContext(), callType)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, fiber.Map{"call_type": callType, "system_prompt": prompt})
}

// Delete handles DELETE /api/prompts/:callType
func (h *PromptHandler) Delete(c *fiber.Ctx) error {
	if err := h.calls.DeactivatePrompt(c.UserContext(), c.Params("callType")); err != nil {
		return serviceError(c, err)
	}
	return response.NoContent(c)
}
