package webapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openline-voip/calld/pkg/stor"
)

const defaultHistoryLimit = 100

type HistoryController struct {
	historyStor stor.HistoryStor
}

func NewHistoryController(historyStor stor.HistoryStor) *HistoryController {
	return &HistoryController{historyStor: historyStor}
}

// ListHistory returns finished transfers and relocates, most recent first.
func (c *HistoryController) ListHistory(ctx echo.Context) error {
	limit := defaultHistoryLimit
	if param := ctx.QueryParam("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			return apiError(ctx, http.StatusBadRequest, "invalid-limit", "limit must be a positive integer")
		}
		limit = parsed
	}

	entries, err := c.historyStor.ListRecent(limit)
	if err != nil {
		return apiError(ctx, http.StatusInternalServerError, "internal-error", err.Error())
	}

	return ctx.JSON(http.StatusOK, map[string]any{"items": entries})
}
