package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/api"
	"github.com/sirosfoundation/go-httpservice/internal/backend"
	"github.com/sirosfoundation/go-httpservice/internal/engine"
	"github.com/sirosfoundation/go-httpservice/internal/journal"
	"github.com/sirosfoundation/go-httpservice/internal/server"
	"github.com/sirosfoundation/go-httpservice/internal/websocket"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
	"github.com/sirosfoundation/go-httpservice/pkg/logging"
)

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the managed server and the admin API",
	Long: `Run the managed HTTP server. The configuration file and HTTPSERVICE_*
environment variables configure the server, which is then started.

SIGHUP reloads the configuration and restarts the server with it.
SIGINT and SIGTERM stop the server and exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configFile)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd)
}

func serve(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting httpservice", zap.String("version", api.Version))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.New(ctx, &cfg.Journal)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("Journal initialized", zap.String("type", cfg.Journal.Type))

	opts := engine.DefaultOptions()
	opts.CORS = cfg.CORS
	root := api.NewRootHandler()
	ctrl := server.NewController(engine.NewGinFactory(logger, opts), root, logger)

	recorder := journal.NewRecorder(store, ctrl, logger, journal.DefaultBufferSize)
	defer recorder.Close()
	hub := websocket.NewHub(ctrl, cfg.CORS.AllowedOrigins, logger)
	defer hub.Close()

	if err := ctrl.AddListener(recorder); err != nil {
		return err
	}
	if err := ctrl.AddListener(hub); err != nil {
		return err
	}
	if err := ctrl.AddEngineListener(root); err != nil {
		return err
	}

	handlers := api.NewAdminHandlers(ctrl, store, hub, logger)

	serverCfg := cfg.Server
	if err := ctrl.Configure(&serverCfg); err != nil {
		return fmt.Errorf("failed to configure server: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		return err
	}

	var adminSrv *api.AdminServer
	if cfg.Admin.Enabled {
		adminSrv, err = api.NewAdminServer(cfg.Admin, cfg.CORS, handlers, logger)
		if err != nil {
			ctrl.Stop()
			return err
		}
		if err := adminSrv.Start(); err != nil {
			ctrl.Stop()
			return err
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for sig := range sigs {
		if sig != syscall.SIGHUP {
			break
		}
		reload(ctrl, configFile, logger)
	}

	logger.Info("Shutting down...")

	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.Error("Admin server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	ctrl.Stop()

	logger.Info("Server exited")
	return nil
}

// reload applies the server section of the configuration file. Other
// sections need a process restart.
func reload(ctrl *server.Controller, configFile string, logger *zap.Logger) {
	logger.Info("Reloading configuration", zap.String("file", configFile))

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}
	if err := ctrl.Configure(&cfg.Server); err != nil {
		logger.Error("Failed to apply reloaded configuration", zap.Error(err))
	}
}
