package cmd

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openline-voip/calld/pkg/bus"
	"github.com/openline-voip/calld/pkg/relocate"
	"github.com/openline-voip/calld/pkg/stor"
	"github.com/openline-voip/calld/pkg/transfer"
	"github.com/openline-voip/calld/pkg/webapi"
)

type RouteOpts struct {
	transfers   *transfer.Machine
	relocates   *relocate.Machine
	historyStor stor.HistoryStor
	hub         *bus.Hub
}

func setupRoutes(e *echo.Echo, opts RouteOpts) {
	g := e.Group("/api")

	transferController := webapi.NewTransferController(opts.transfers)
	g.POST("/transfers", transferController.CreateTransfer)
	g.GET("/transfers/:id", transferController.GetTransfer)
	g.DELETE("/transfers/:id", transferController.CancelTransfer)
	g.PUT("/transfers/:id/complete", transferController.CompleteTransfer)
	g.GET("/users/me/transfers", transferController.ListMyTransfers)

	relocateController := webapi.NewRelocateController(opts.relocates)
	g.POST("/users/me/relocates", relocateController.CreateRelocate)
	g.GET("/users/me/relocates", relocateController.ListMyRelocates)
	g.GET("/users/me/relocates/:id", relocateController.GetRelocate)
	g.DELETE("/users/me/relocates/:id", relocateController.CancelRelocate)
	g.PUT("/users/me/relocates/:id/complete", relocateController.CompleteRelocate)

	historyController := webapi.NewHistoryController(opts.historyStor)
	g.GET("/history", historyController.ListHistory)

	g.GET("/events", opts.hub.ServeWS)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
