package handler

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/service"
	"github.com/coachcall/api/pkg/response"
)

// SyncProcessor runs the pipeline inside the request
type SyncProcessor interface {
	ProcessCall(ctx context.Context, callID string) model.ProcessResult
}

type CallHandler struct {
	calls     *service.CallService
	reports   *service.ReportService
	processor SyncProcessor
	validator *validator.Validate
}

func NewCallHandler(calls *service.CallService, reports *service.ReportService, processor SyncProcessor, v *validator.Validate) *CallHandler {
	return &CallHandler{
		calls:     calls,
		reports:   reports,
		processor: processor,
		validator: v,
	}
}

// Create handles POST /api/calls
func (h *CallHandler) Create(c *fiber.Ctx) error {
	var req model.CreateCallRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	call, queued, err := h.calls.CreateCall(c.UserContext(), &req)
	if err != nil {
		if call == nil {
			return serviceError(c, err)
		}
		// registered but not queued; the caller can retry /api/process-call
		return response.Created(c, model.CreateCallResponse{
			Call:       call,
			QueueError: fmt.Sprintf(model.MsgEnqueueFailed, err),
		})
	}

	return response.Created(c, model.CreateCallResponse{Call: call, Queued: queued})
}

// Get handles GET /api/calls/:callId
func (h *CallHandler) Get(c *fiber.Ctx) error {
	callID := c.Params("callId")
	if callID == "" {
		return response.ValidationError(c, "Call ID is required", nil)
	}

	call, err := h.calls.GetCall(c.UserContext(), callID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, call)
}

// Logs handles GET /api/calls/:callId/logs
func (h *CallHandler) Logs(c *fiber.Ctx) error {
	callID := c.Params("callId")
	if callID == "" {
		return response.ValidationError(c, "Call ID is required", nil)
	}

	logs, err := h.calls.ListLogs(c.UserContext(), callID, c.QueryInt("limit", 0))
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, fiber.Map{"call_id": callID, "logs": logs})
}

// Report handles GET /api/calls/:callId/report. The workbook is streamed
// unless ?format=url asks for an uploaded copy.
func (h *CallHandler) Report(c *fiber.Ctx) error {
	callID := c.Params("callId")
	if callID == "" {
		return response.ValidationError(c, "Call ID is required", nil)
	}

	if c.Query("format") == "url" {
		res, err := h.reports.Export(c.UserContext(), callID)
		if err != nil {
			return serviceError(c, err)
		}
		return response.OK(c, res)
	}

	report, err := h.reports.Generate(c.UserContext(), callID)
	if err != nil {
		return serviceError(c, err)
	}

	c.Set(fiber.HeaderContentType, report.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, report.FileName))
	return c.Send(report.Data)
}

// Process handles POST /api/process-call
func (h *CallHandler) Process(c *fiber.Ctx) error {
	var req model.ProcessCallRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	queued, err := h.calls.EnqueueAnalysis(c.UserContext(), req.CallID, "api")
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, queued)
}

// ProcessSync handles POST /api/process-call/sync
func (h *CallHandler) ProcessSync(c *fiber.Ctx) error {
	var req model.ProcessCallRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	res := h.processor.ProcessCall(c.UserContext(), req.CallID)
	switch {
	case res.Success:
		return response.OK(c, res)
	case res.Message == model.MsgCallNotFound:
		return response.NotFound(c, res.Message)
	case res.Message == model.MsgCallInErrorState:
		return response.Conflict(c, res.Message)
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}
}
