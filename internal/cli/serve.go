package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"babyrag/internal/api"
	"babyrag/internal/health"
	"babyrag/internal/observe"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves /api/ingest, /api/ask, /api/reset and /api/mode together with
/healthz, /readyz and Prometheus metrics on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.listen_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if ragService == nil || appConfig == nil {
		return errors.New("service not configured")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	hc := health.New(checkers...)
	hc.Skip = ragService.Fake

	addr := appConfig.Server.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := api.New(api.Config{
		Addr:           addr,
		MaxUploadBytes: int64(appConfig.Server.MaxUploadMB) << 20,
	}, ragService, hc, appMetrics)
	return srv.Run(ctx)
}
