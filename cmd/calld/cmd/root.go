package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/openline-voip/calld/pkg/bus"
	"github.com/openline-voip/calld/pkg/config"
	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/lock"
	"github.com/openline-voip/calld/pkg/logging"
	"github.com/openline-voip/calld/pkg/relocate"
	"github.com/openline-voip/calld/pkg/router"
	"github.com/openline-voip/calld/pkg/stor"
	"github.com/openline-voip/calld/pkg/transfer"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "calld",
	Short: "Run the call control daemon",
	Long: `calld drives call transfers and relocates on top of the telephony
engine. It consumes the engine's event feed, keeps durable operation records
in engine global variables, and exposes a REST API plus a websocket event
stream for clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		if dotenvPath := os.Getenv("CALLD_DOTENV_PATH"); dotenvPath != "" {
			if err := config.LoadFromPath(dotenvPath); err != nil {
				log.Fatalf("Failed loading configuration file %s: %s", dotenvPath, err)
			}
		}

		logFile := config.GetKey("CALLD_LOG_FILE")
		logLevel := config.GetKeyWithDefault("CALLD_LOG_LEVEL", "info")
		if err := logging.Setup(logFile, logLevel); err != nil {
			log.Fatalf("Failed setting up logging: %s", err)
		}

		engineURL := config.MustGetKey("CALLD_ENGINE_URL")
		engineWSURL := config.MustGetKey("CALLD_ENGINE_WS_URL")
		apiKey := config.GetKey("CALLD_ENGINE_API_KEY")
		app := config.GetKeyWithDefault("CALLD_APP", "calld")

		engineClient := engine.NewRestClient(engineURL, apiKey)
		adminClient := engine.NewRestAdminClient(engineURL, apiKey)

		transferStor := stor.NewEngineTransferStor(engineClient)
		relocateStor := stor.NewEngineRelocateStor(engineClient)
		historyDB := stor.MustConnectHistoryDB(config.GetKeyWithDefault("CALLD_HISTORY_DB", "calld-history.db"))
		historyStor := stor.NewGormHistoryStor(historyDB)

		hub := bus.NewHub()
		go hub.Run()

		notifier := bus.NewNotifier(hub, historyStor)

		transferLocker := lock.NewOpLocker()
		relocateLocker := lock.NewOpLocker()
		hangupLocker := lock.NewOpLocker()

		transfers := transfer.NewMachine(transfer.MachineOpts{
			Engine:       engineClient,
			Admin:        adminClient,
			Stor:         transferStor,
			Locker:       transferLocker,
			HangupLocker: hangupLocker,
			Notifier:     notifier,
			App:          app,
			MOHClass:     config.GetKeyWithDefault("CALLD_MOH_CLASS", "default"),
		})
		relocates := relocate.NewMachine(relocate.MachineOpts{
			Engine:       engineClient,
			Stor:         relocateStor,
			Locker:       relocateLocker,
			HangupLocker: hangupLocker,
			Notifier:     notifier,
			App:          app,
		})

		// Records persisted by a previous run still hold their operation
		// locks; rebuild them before serving anything.
		if err := transfers.RecoverLocks(); err != nil {
			log.Fatalf("Unable to recover transfer locks: %s", err)
		}
		if err := relocates.RecoverLocks(); err != nil {
			log.Fatalf("Unable to recover relocate locks: %s", err)
		}

		eventRouter := router.NewRouter(router.RouterOpts{
			Engine:       engineClient,
			Transfers:    transfers,
			Relocates:    relocates,
			TransferStor: transferStor,
			RelocateStor: relocateStor,
			HangupLocker: hangupLocker,
		})

		feed, err := engine.DialEventFeed(engineWSURL, apiKey, app)
		if err != nil {
			log.Fatalf("Unable to connect to engine event feed: %s", err)
		}

		go func() {
			if err := feed.Run(eventRouter.Process); err != nil {
				log.Fatalf("Engine event feed closed: %s", err)
			}
		}()

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(middleware.Recover())

		setupRoutes(e, RouteOpts{
			transfers:   transfers,
			relocates:   relocates,
			historyStor: historyStor,
			hub:         hub,
		})

		if err := e.Start(":" + config.GetKeyWithDefault("CALLD_PORT", "9500")); err != nil {
			log.Fatalf("Unable to start server: %v", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
