package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/discovery"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/server"
	"github.com/BioHazard786/Warpcall/internal/telemetry"
	"github.com/BioHazard786/Warpcall/internal/version"
)

var (
	flagAddr           string
	flagAllowedOrigins string
	flagOTLPEndpoint   string
	flagMDNS           bool
	flagInstance       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the signaling server. Participants connect to /ws; /rooms lists active rooms
and /health reports liveness.

Examples:
  warpcall serve
  warpcall serve --addr :9000 --mdns
  ALLOWED_ORIGINS=https://call.example.com warpcall serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (env ADDR, default :8080)")
	serveCmd.Flags().StringVar(&flagAllowedOrigins, "allowed-origins", "", "Comma separated browser origins allowed to connect (env ALLOWED_ORIGINS)")
	serveCmd.Flags().StringVar(&flagOTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for metrics (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	serveCmd.Flags().BoolVar(&flagMDNS, "mdns", false, "Advertise the server on the local network (env MDNS)")
	serveCmd.Flags().StringVar(&flagInstance, "name", "", "mDNS instance name (default: warpcall-<hostname>)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := logging.Init(slog.LevelInfo)
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.LoadServer(config.ServerOptions{
		Addr:           flagAddr,
		AllowedOrigins: flagAllowedOrigins,
		OTLPEndpoint:   flagOTLPEndpoint,
		Advertise:      flagMDNS,
	})
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.Options{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version.Version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("flushing metrics", "error", err)
		}
	}()

	srv, err := server.New(server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MeterProvider:  tel.MeterProvider(),
		Logger:         logger,
		Version:        version.Version,
	})
	if err != nil {
		return err
	}

	if cfg.Advertise {
		port := cfg.Port()
		if port == 0 {
			return fmt.Errorf("cannot advertise %q: address has no port", cfg.Addr)
		}
		go func() {
			if err := discovery.Advertise(ctx, instanceName(), port, version.Version, logger); err != nil {
				logger.Error("mDNS advertising failed", "error", err)
			}
		}()
	}

	return srv.Run(ctx, cfg.Addr)
}

func instanceName() string {
	if flagInstance != "" {
		return flagInstance
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "warpcall"
	}
	return "warpcall-" + host
}
