package webapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/lock"
	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/stor"
	"github.com/openline-voip/calld/pkg/transfer"
)

type nopNotifier struct{}

func (nopNotifier) TransferCreated(*model.Transfer)   {}
func (nopNotifier) TransferAnswered(*model.Transfer)  {}
func (nopNotifier) TransferCancelled(*model.Transfer) {}
func (nopNotifier) TransferCompleted(*model.Transfer) {}
func (nopNotifier) TransferAbandoned(*model.Transfer) {}
func (nopNotifier) TransferEnded(*model.Transfer)     {}

type controllerFixture struct {
	controller *TransferController
	machine    *transfer.Machine
	engine     *engine.MockClient
}

func newControllerFixture(t *testing.T) *controllerFixture {
	f := &controllerFixture{engine: engine.NewMockClient()}

	admin := engine.NewMockAdminClient()
	admin.AddExtension("internal", "1001")

	f.machine = transfer.NewMachine(transfer.MachineOpts{
		Engine:       f.engine,
		Admin:        admin,
		Stor:         stor.NewInMemoryTransferStor(),
		Locker:       lock.NewOpLocker(),
		HangupLocker: lock.NewOpLocker(),
		Notifier:     nopNotifier{},
		App:          "calld",
		MOHClass:     "default",
	})
	f.controller = NewTransferController(f.machine)

	f.engine.AddChannel("chan-transferred", true)
	f.engine.AddChannel("chan-initiator", true)
	f.engine.SetOriginateID("chan-recipient")

	return f
}

func setupEchoContext(method, target, userUUID string, body any) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()

	var reader bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&reader).Encode(body)
	}

	req := httptest.NewRequest(method, target, &reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userUUID != "" {
		req.Header.Set("X-User-UUID", userUUID)
	}

	rec := httptest.NewRecorder()

	return e.NewContext(req, rec), rec
}

func createBody() map[string]any {
	return map[string]any{
		"transferred_call": "chan-transferred",
		"initiator_call":   "chan-initiator",
		"context":          "internal",
		"exten":            "1001",
		"flow":             "attended",
	}
}

func (f *controllerFixture) createTransfer(t *testing.T, userUUID string) *model.Transfer {
	ctx, rec := setupEchoContext(http.MethodPost, "/api/transfers", userUUID, createBody())
	require.NoError(t, f.controller.CreateTransfer(ctx))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	return &created
}

func TestCreateTransfer(t *testing.T) {
	f := newControllerFixture(t)

	created := f.createTransfer(t, "user-1")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.TransferRingback, created.Status)
	assert.Equal(t, "user-1", created.InitiatorUUID)
}

func TestCreateTransferAlreadyStarted(t *testing.T) {
	f := newControllerFixture(t)
	f.createTransfer(t, "user-1")

	ctx, rec := setupEchoContext(http.MethodPost, "/api/transfers", "user-1", createBody())
	require.NoError(t, f.controller.CreateTransfer(ctx))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "transfer-already-started")
}

func TestCreateTransferBadRequest(t *testing.T) {
	f := newControllerFixture(t)

	body := createBody()
	body["transferred_call"] = "chan-missing"

	ctx, rec := setupEchoContext(http.MethodPost, "/api/transfers", "user-1", body)
	require.NoError(t, f.controller.CreateTransfer(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "transfer-creation-error")
}

func TestGetTransfer(t *testing.T) {
	f := newControllerFixture(t)
	created := f.createTransfer(t, "user-1")

	t.Run("Found", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/transfers/"+created.ID, "user-1", nil)
		ctx.SetParamNames("id")
		ctx.SetParamValues(created.ID)

		require.NoError(t, f.controller.GetTransfer(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/transfers/nope", "user-1", nil)
		ctx.SetParamNames("id")
		ctx.SetParamValues("nope")

		require.NoError(t, f.controller.GetTransfer(ctx))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "no-such-transfer")
	})

	t.Run("OtherUsersTransferIsHidden", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/transfers/"+created.ID, "user-2", nil)
		ctx.SetParamNames("id")
		ctx.SetParamValues(created.ID)

		require.NoError(t, f.controller.GetTransfer(ctx))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCompleteTransferWrongState(t *testing.T) {
	f := newControllerFixture(t)
	created := f.createTransfer(t, "user-1")

	// Recipient has not answered, attended completion is not allowed yet.
	ctx, rec := setupEchoContext(http.MethodPut, "/api/transfers/"+created.ID+"/complete", "user-1", nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues(created.ID)

	require.NoError(t, f.controller.CompleteTransfer(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "transfer-completion-error")
}

func TestCancelTransfer(t *testing.T) {
	f := newControllerFixture(t)
	created := f.createTransfer(t, "user-1")

	ctx, rec := setupEchoContext(http.MethodDelete, "/api/transfers/"+created.ID, "user-1", nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues(created.ID)

	require.NoError(t, f.controller.CancelTransfer(ctx))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, f.engine.Hungup(), "chan-recipient")
}

func TestListMyTransfers(t *testing.T) {
	f := newControllerFixture(t)
	created := f.createTransfer(t, "user-1")

	t.Run("Owner", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/users/me/transfers", "user-1", nil)
		require.NoError(t, f.controller.ListMyTransfers(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), created.ID)
	})

	t.Run("OtherUser", func(t *testing.T) {
		ctx, rec := setupEchoContext(http.MethodGet, "/api/users/me/transfers", "user-2", nil)
		require.NoError(t, f.controller.ListMyTransfers(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), created.ID)
	})
}
