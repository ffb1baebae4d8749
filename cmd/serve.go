package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevecastle/wallkit/logging"
	"github.com/stevecastle/wallkit/stream"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API and the /stream event feed",
	Long: `serve keeps one orchestrator alive behind a local HTTP API. Batch progress,
scan results, collection changes and wallpaper changes are pushed to every
client connected to /stream as server-sent events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		hub := stream.NewHub(logger)
		logger = logging.SetupWithWriter(logLevel, hub.LogWriter())
		o, done := newOrchestrator(hub)
		defer done()
		defer o.StopWallpaper()

		server := &http.Server{
			Addr:              serveAddr,
			Handler:           newAPI(ctx, o, hub, logger),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		go func() {
			<-ctx.Done()
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("shutdown")
				server.Close()
			}
		}()

		logger.Info().Str("addr", serveAddr).Msg("listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8090", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
