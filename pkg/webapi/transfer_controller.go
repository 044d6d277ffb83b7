package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/transfer"
)

type TransferController struct {
	machine *transfer.Machine
}

func NewTransferController(machine *transfer.Machine) *TransferController {
	return &TransferController{machine: machine}
}

func (c *TransferController) CreateTransfer(ctx echo.Context) error {
	var req struct {
		TransferredCall string            `json:"transferred_call"`
		InitiatorCall   string            `json:"initiator_call"`
		Context         string            `json:"context"`
		Exten           string            `json:"exten"`
		Flow            string            `json:"flow"`
		Variables       map[string]string `json:"variables"`
		Timeout         int               `json:"timeout"`
	}

	if err := ctx.Bind(&req); err != nil {
		return apiError(ctx, http.StatusBadRequest, "transfer-creation-error", err.Error())
	}

	t, err := c.machine.Create(transfer.CreateRequest{
		TransferredCall: req.TransferredCall,
		InitiatorCall:   req.InitiatorCall,
		Context:         req.Context,
		Exten:           req.Exten,
		Flow:            model.TransferFlow(req.Flow),
		Variables:       req.Variables,
		Timeout:         req.Timeout,
		InitiatorUUID:   callerUUID(ctx),
	})
	if err != nil {
		return respondTransferError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, t)
}

func (c *TransferController) GetTransfer(ctx echo.Context) error {
	t, err := c.load(ctx)
	if err != nil {
		return respondTransferError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, t)
}

func (c *TransferController) CompleteTransfer(ctx echo.Context) error {
	if _, err := c.load(ctx); err != nil {
		return respondTransferError(ctx, err)
	}

	if err := c.machine.Complete(ctx.Param("id")); err != nil {
		return respondTransferError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *TransferController) CancelTransfer(ctx echo.Context) error {
	if _, err := c.load(ctx); err != nil {
		return respondTransferError(ctx, err)
	}

	if err := c.machine.Cancel(ctx.Param("id")); err != nil {
		return respondTransferError(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *TransferController) ListMyTransfers(ctx echo.Context) error {
	transfers, err := c.machine.ListForUser(callerUUID(ctx))
	if err != nil {
		return respondTransferError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"items": transfers})
}

// load fetches the addressed transfer and enforces that the caller created
// it. Records created without an identity are open to everyone.
func (c *TransferController) load(ctx echo.Context) (*model.Transfer, error) {
	t, err := c.machine.Get(ctx.Param("id"))
	if err != nil {
		return nil, err
	}

	caller := callerUUID(ctx)
	if t.InitiatorUUID != "" && caller != "" && t.InitiatorUUID != caller {
		return nil, transfer.ErrNoSuchTransfer
	}

	return t, nil
}
