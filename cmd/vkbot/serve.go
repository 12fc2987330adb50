package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.mau.fi/util/exerrors"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/methods"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo bot on the Callback API",
	Long: `Serve listens for Callback API requests on callback.listen and dispatches
them like long poll updates. Only community tokens can use the Callback API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := exerrors.Must(newClient())
		registerDemoHandlers(client)
		if cfg.Callback.Secret == "" {
			log.Warn().
				Str("suggested_secret", methods.GenerateSecret()).
				Msg("callback.secret is empty, requests are not authenticated")
		}
		receiver := client.NewCallbackServer(cfg.Callback.CallbackConfig)
		server := &http.Server{
			Addr:              cfg.Callback.Listen,
			Handler:           receiver.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		client.Start(ctx)
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("address", server.Addr).Msg("Starting Callback API receiver")
			errCh <- server.ListenAndServe()
		}()
		select {
		case err := <-errCh:
			client.Disconnect()
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		client.Disconnect()
		return err
	},
}
