package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ws3ds/ws3ds-go/internal/logging"
	"github.com/ws3ds/ws3ds-go/pkg/api"
	"github.com/ws3ds/ws3ds-go/pkg/discovery"
)

func serveCmd(opts *options) *cobra.Command {
	var (
		addr      string
		autoStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		Long: `Serve the device controls over HTTP:

  GET  /status    session state and device address
  POST /search    start a search ({"host": "..."} optional)
  POST /cancel    abandon the current search
  POST /text      send {"text": "..."}
  POST /image     send the image in the request body
  GET  /metrics   Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(cmd, opts, os.Stderr, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("addr") {
				a.cfg.HTTP.Addr = addr
			}
			return a.serve(ctx, autoStart)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8035)")
	cmd.Flags().BoolVar(&autoStart, "start", false, "Start a search immediately")
	return cmd
}

func (a *app) serve(ctx context.Context, autoStart bool) error {
	srv := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: api.NewHandler(a.client, api.Options{
			Logger:   a.logger,
			Gatherer: a.registry,
		}),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("control surface listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case err := <-a.client.Failures():
				a.logger.Warn("search failed", logging.Err(err))
			case <-ctx.Done():
				return nil
			}
		}
	})

	if autoStart {
		g.Go(func() error {
			err := a.client.Start(ctx, a.startOptions())
			if errors.Is(err, discovery.ErrUnresolved) {
				a.logger.Warn("auto start skipped: local address unresolved", logging.Err(err))
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down control surface")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
