package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/relocate"
)

type RelocateController struct {
	machine *relocate.Machine
}

func NewRelocateController(machine *relocate.Machine) *RelocateController {
	return &RelocateController{machine: machine}
}

func (c *RelocateController) CreateRelocate(ctx echo.Context) error {
	var req struct {
		InitiatorCall string            `json:"initiator_call"`
		Destination   model.Destination `json:"destination"`
		Completions   []string          `json:"completions"`
		Timeout       int               `json:"timeout"`
	}

	if err := ctx.Bind(&req); err != nil {
		return apiError(ctx, http.StatusBadRequest, "relocate-creation-error", err.Error())
	}

	r, err := c.machine.Create(relocate.CreateRequest{
		InitiatorCall: req.InitiatorCall,
		Destination:   req.Destination,
		Completions:   req.Completions,
		Timeout:       req.Timeout,
		UserUUID:      callerUUID(ctx),
	})
	if err != nil {
		return respondRelocateError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, r)
}

func (c *RelocateController) GetRelocate(ctx echo.Context) error {
	r, err := c.load(ctx)
	if err != nil {
		return respondRelocateError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, r)
}

func (c *RelocateController) CompleteRelocate(ctx echo.Context) error {
	if _, err := c.load(ctx); err != nil {
		return respondRelocateError(ctx, err)
	}

	if err := c.machine.Complete(ctx.Param("id")); err != nil {
		return respondRelocateError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *RelocateController) CancelRelocate(ctx echo.Context) error {
	if _, err := c.load(ctx); err != nil {
		return respondRelocateError(ctx, err)
	}

	if err := c.machine.Cancel(ctx.Param("id")); err != nil {
		return respondRelocateError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *RelocateController) ListMyRelocates(ctx echo.Context) error {
	relocates, err := c.machine.ListForUser(callerUUID(ctx))
	if err != nil {
		return respondRelocateError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"items": relocates})
}

func (c *RelocateController) load(ctx echo.Context) (*model.Relocate, error) {
	r, err := c.machine.Get(ctx.Param("id"))
	if err != nil {
		return nil, err
	}

	caller := callerUUID(ctx)
	if r.UserUUID != "" && caller != "" && r.UserUUID != caller {
		return nil, relocate.ErrNoSuchRelocate
	}

	return r, nil
}
