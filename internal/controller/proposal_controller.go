package controller

import (
	"errors"
	"net/url"
	"strconv"

	"grant-assistant-be/internal/dto"
	"grant-assistant-be/internal/pkg/serverutils"
	"grant-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IProposalController interface {
	RegisterRoutes(r fiber.Router, stream fiber.Handler)
	GetContext(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	PatchContext(ctx *fiber.Ctx) error
	ResetSession(ctx *fiber.Ctx) error
	GetSteps(ctx *fiber.Ctx) error
	GetStepRequirements(ctx *fiber.Ctx) error
	Navigate(ctx *fiber.Ctx) error
	UpdateSection(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	GetTranscript(ctx *fiber.Ctx) error
	GetActivity(ctx *fiber.Ctx) error
}

type proposalController struct {
	proposalService service.IProposalService
	consumerService service.IConsumerService
}

func NewProposalController(proposalService service.IProposalService, consumerService service.IConsumerService) IProposalController {
	return &proposalController{
		proposalService: proposalService,
		consumerService: consumerService,
	}
}

// RegisterRoutes mounts the proposal API. stream may be nil when no
// websocket hub is configured.
func (c *proposalController) RegisterRoutes(r fiber.Router, stream fiber.Handler) {
	h := r.Group("/proposal/v1")
	h.Get("context", c.GetContext)
	h.Patch("context", c.PatchContext)
	h.Delete("context", c.ResetSession)
	h.Post("messages", c.SendMessage)
	h.Get("steps", c.GetSteps)
	h.Post("steps/navigate", c.Navigate)
	h.Get("steps/:step/requirements", c.GetStepRequirements)
	h.Put("sections/:id", c.UpdateSection)
	h.Get("session", c.GetSession)
	h.Get("transcript", c.GetTranscript)
	h.Get("activity", c.GetActivity)
	if stream != nil {
		h.Get("stream", stream)
	}
}

func (c *proposalController) GetContext(ctx *fiber.Ctx) error {
	res := c.proposalService.GetContext(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success get context", res))
}

func (c *proposalController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.proposalService.SendMessage(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success process message", res))
}

func (c *proposalController) PatchContext(ctx *fiber.Ctx) error {
	var req dto.PatchContextRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.proposalService.PatchContext(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update context", res))
}

func (c *proposalController) ResetSession(ctx *fiber.Ctx) error {
	res, err := c.proposalService.ResetSession(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success reset session", res))
}

func (c *proposalController) GetSteps(ctx *fiber.Ctx) error {
	res := c.proposalService.GetSteps(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success get steps", res))
}

func (c *proposalController) GetStepRequirements(ctx *fiber.Ctx) error {
	// Step names carry umlauts, so the raw path segment arrives escaped.
	step, err := url.PathUnescape(ctx.Params("step"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid step")
	}

	res, err := c.proposalService.GetStepRequirements(ctx.Context(), step)
	if err != nil {
		return mapProposalError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get step requirements", res))
}

func (c *proposalController) Navigate(ctx *fiber.Ctx) error {
	var req dto.NavigateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.proposalService.Navigate(ctx.Context(), &req)
	if err != nil {
		return mapProposalError(err)
	}

	// A refused transition is a normal answer, not an error.
	message := "Success navigate"
	if !res.Allowed {
		message = "Navigation refused"
	}
	return ctx.JSON(serverutils.SuccessResponse(message, res))
}

func (c *proposalController) UpdateSection(ctx *fiber.Ctx) error {
	var req dto.UpdateSectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	req.Id = ctx.Params("id")

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.proposalService.UpdateSection(ctx.Context(), &req)
	if err != nil {
		return mapProposalError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update section", res))
}

func (c *proposalController) GetSession(ctx *fiber.Ctx) error {
	res, err := c.proposalService.GetSession(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *proposalController) GetTranscript(ctx *fiber.Ctx) error {
	res := c.proposalService.GetTranscript(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success get transcript", res))
}

func (c *proposalController) GetActivity(ctx *fiber.Ctx) error {
	limit, err := strconv.Atoi(ctx.Query("limit", "50"))
	if err != nil || limit < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid limit")
	}

	res := c.consumerService.Recent(limit)
	return ctx.JSON(serverutils.SuccessResponse("Success get activity", res))
}

func mapProposalError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidStep):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidSection):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}
