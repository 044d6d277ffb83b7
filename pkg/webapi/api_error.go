package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/relocate"
	"github.com/openline-voip/calld/pkg/transfer"
)

// APIError is the error envelope every failing endpoint returns.
type APIError struct {
	ErrorID string `json:"error_id"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func apiError(ctx echo.Context, status int, errorID, message string) error {
	return ctx.JSON(status, APIError{ErrorID: errorID, Message: message})
}

// respondTransferError maps a transfer operation failure onto the HTTP
// error taxonomy.
func respondTransferError(ctx echo.Context, err error) error {
	var (
		creationErr     *transfer.CreationError
		completionErr   *transfer.CompletionError
		cancellationErr *transfer.CancellationError
	)

	switch {
	case errors.As(err, &creationErr):
		return apiError(ctx, http.StatusBadRequest, "transfer-creation-error", creationErr.Error())
	case errors.As(err, &completionErr):
		return apiError(ctx, http.StatusBadRequest, "transfer-completion-error", completionErr.Error())
	case errors.As(err, &cancellationErr):
		return apiError(ctx, http.StatusBadRequest, "transfer-cancellation-error", cancellationErr.Error())
	case errors.Is(err, transfer.ErrAlreadyStarted):
		return apiError(ctx, http.StatusConflict, "transfer-already-started", err.Error())
	case errors.Is(err, transfer.ErrNoSuchTransfer):
		return apiError(ctx, http.StatusNotFound, "no-such-transfer", err.Error())
	case errors.Is(err, engine.ErrEngineUnavailable):
		return apiError(ctx, http.StatusServiceUnavailable, "engine-unavailable", err.Error())
	default:
		return apiError(ctx, http.StatusInternalServerError, "internal-error", err.Error())
	}
}

func respondRelocateError(ctx echo.Context, err error) error {
	var (
		creationErr     *relocate.CreationError
		completionErr   *relocate.CompletionError
		cancellationErr *relocate.CancellationError
	)

	switch {
	case errors.As(err, &creationErr):
		return apiError(ctx, http.StatusBadRequest, "relocate-creation-error", creationErr.Error())
	case errors.As(err, &completionErr):
		return apiError(ctx, http.StatusBadRequest, "relocate-completion-error", completionErr.Error())
	case errors.As(err, &cancellationErr):
		return apiError(ctx, http.StatusBadRequest, "relocate-cancellation-error", cancellationErr.Error())
	case errors.Is(err, relocate.ErrAlreadyStarted):
		return apiError(ctx, http.StatusConflict, "relocate-already-started", err.Error())
	case errors.Is(err, relocate.ErrNoSuchRelocate):
		return apiError(ctx, http.StatusNotFound, "no-such-relocate", err.Error())
	case errors.Is(err, engine.ErrEngineUnavailable):
		return apiError(ctx, http.StatusServiceUnavailable, "engine-unavailable", err.Error())
	default:
		return apiError(ctx, http.StatusInternalServerError, "internal-error", err.Error())
	}
}

// callerUUID extracts the caller identity. Authentication happens upstream;
// the daemon trusts the header it is handed.
func callerUUID(ctx echo.Context) string {
	return ctx.Request().Header.Get("X-User-UUID")
}
