package controller

import (
	"errors"
	"fmt"

	"grant-assistant-be/internal/dto"
	"grant-assistant-be/internal/pkg/serverutils"
	"grant-assistant-be/internal/service"
	"grant-assistant-be/pkg/proposal/draft"

	"github.com/gofiber/fiber/v2"
)

type IDraftController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Save(ctx *fiber.Ctx) error
	ClearAll(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	Import(ctx *fiber.Ctx) error
	AutoSave(ctx *fiber.Ctx) error
	GetAutoSave(ctx *fiber.Ctx) error
	UpdateAutoSaveSettings(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
	Restore(ctx *fiber.Ctx) error
}

type draftController struct {
	draftService service.IDraftService
}

func NewDraftController(draftService service.IDraftService) IDraftController {
	return &draftController{
		draftService: draftService,
	}
}

func (c *draftController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/draft/v1")
	h.Get("", c.List)
	h.Post("", c.Save)
	h.Delete("", c.ClearAll)
	h.Get("stats", c.Stats)
	h.Post("import", c.Import)
	h.Post("autosave", c.AutoSave)
	h.Get("autosave", c.GetAutoSave)
	h.Put("autosave/settings", c.UpdateAutoSaveSettings)
	h.Get(":id", c.Show)
	h.Delete(":id", c.Delete)
	h.Get(":id/export", c.Export)
	h.Post(":id/restore", c.Restore)
}

func (c *draftController) List(ctx *fiber.Ctx) error {
	res := c.draftService.List(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success list drafts", res))
}

func (c *draftController) Save(ctx *fiber.Ctx) error {
	var req dto.SaveDraftRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.draftService.Save(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success save draft", res))
}

func (c *draftController) ClearAll(ctx *fiber.Ctx) error {
	if err := c.draftService.ClearAll(ctx.Context()); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success clear drafts", nil))
}

func (c *draftController) Stats(ctx *fiber.Ctx) error {
	res := c.draftService.Stats(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success get draft stats", res))
}

func (c *draftController) Import(ctx *fiber.Ctx) error {
	var req dto.ImportDraftRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.draftService.Import(ctx.Context(), &req)
	if err != nil {
		return mapDraftError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success import draft", res))
}

func (c *draftController) AutoSave(ctx *fiber.Ctx) error {
	res, err := c.draftService.AutoSave(ctx.Context())
	if err != nil {
		return err
	}
	if res == nil {
		return fiber.NewError(fiber.StatusConflict, "Autosave is disabled")
	}

	return ctx.JSON(serverutils.SuccessResponse("Success autosave", res))
}

func (c *draftController) GetAutoSave(ctx *fiber.Ctx) error {
	res, err := c.draftService.GetAutoSave(ctx.Context())
	if err != nil {
		return mapDraftError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get autosave", res))
}

func (c *draftController) UpdateAutoSaveSettings(ctx *fiber.Ctx) error {
	var req dto.AutoSaveSettingsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res := c.draftService.SetAutoSave(ctx.Context(), &req)
	return ctx.JSON(serverutils.SuccessResponse("Success update autosave settings", res))
}

func (c *draftController) Show(ctx *fiber.Ctx) error {
	res, err := c.draftService.Get(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return mapDraftError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show draft", res))
}

func (c *draftController) Delete(ctx *fiber.Ctx) error {
	if err := c.draftService.Delete(ctx.Context(), ctx.Params("id")); err != nil {
		return mapDraftError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete draft", nil))
}

// Export answers with the raw export document as a download.
func (c *draftController) Export(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	content, err := c.draftService.Export(ctx.Context(), id)
	if err != nil {
		return mapDraftError(err)
	}

	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "draft-"+id+".json"))
	ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return ctx.SendString(content)
}

func (c *draftController) Restore(ctx *fiber.Ctx) error {
	res, err := c.draftService.Restore(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return mapDraftError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success restore draft", res))
}

func mapDraftError(err error) error {
	switch {
	case errors.Is(err, draft.ErrDraftNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, draft.ErrUnsupportedFormat), errors.Is(err, draft.ErrMalformedImport):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}
