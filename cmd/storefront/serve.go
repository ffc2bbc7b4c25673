package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/storefront/internal/config"
	"github.com/Sternrassler/storefront/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// sweepInterval is how often idle feed views are dropped.
const sweepInterval = time.Minute

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the shop, the feed and the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, ln)
		},
	}
}

// runServe serves on ln until ctx is done, then shuts down gracefully.
func runServe(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	client, redisClient, err := newCatalogClient(ctx, cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer client.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	opts := web.DefaultOptions()
	opts.PageSize = cfg.Listing.PageSize
	opts.HasNext = cfg.HasNextStrategy()
	opts.HideEmptyCategories = cfg.Listing.HideEmptyCategories
	opts.HasMoreFromInitial = cfg.Listing.HasMoreFromInitial
	opts.FetchTimeout = cfg.Listing.FetchTimeout
	opts.ViewTTL = cfg.Server.ViewTTL
	opts.AllowedOrigins = cfg.Server.AllowedOrigins
	opts.Ready = client.Ping

	server, err := web.New(client, opts)
	if err != nil {
		ln.Close()
		return err
	}

	go server.Views().Run(ctx, sweepInterval)

	httpServer := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", ln.Addr().String()).
			Str("base_url", client.BaseURL()).
			Int("page_size", opts.PageSize).
			Str("has_next", string(opts.HasNext)).
			Msg("Starting storefront server")
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info().Int("views", server.Views().Len()).Msg("Server stopped")
	return nil
}
