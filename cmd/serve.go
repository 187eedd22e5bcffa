// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/protocol"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve <file|url>",
		Short: "Serve the request protocol for one page over stdio or a websocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			router := protocol.NewRouter(a.logger)
			if err := s.engine.Install(router); err != nil {
				return err
			}
			s.engine.Start(ctx)

			sc := a.cfg.ServerCfg
			opts := protocol.ServeOptions{MaxInFlight: sc.MaxInFlight}
			if sc.Transport == config.TransportStdio {
				a.logger.Info("Serving on stdio.", zap.Strings("types", typeNames(router)))
				stream := protocol.NewStream(cmd.InOrStdin(), cmd.OutOrStdout())
				return protocol.Serve(ctx, stream, router, opts)
			}
			return a.serveHTTP(ctx, s, router, opts)
		},
	}
	serveCmd.Flags().String("transport", "", "stdio or websocket (overrides config)")
	serveCmd.Flags().String("listen", "", "websocket listen address (overrides config)")
	serveCmd.Flags().String("profile", "", "profile to fill values from (overrides config)")
	return serveCmd
}

// newHTTPHandler mounts the websocket endpoint with health and metrics routes.
func newHTTPHandler(s *session, router *protocol.Router, opts protocol.ServeOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		info, err := s.engine.State(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "url": info.URL})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/ws", protocol.WebSocketHandler(router, opts, logger))
	return r
}

func (a *app) serveHTTP(ctx context.Context, s *session, router *protocol.Router, opts protocol.ServeOptions) error {
	sc := a.cfg.ServerCfg
	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           newHTTPHandler(s, router, opts, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked websocket connections outlive Shutdown; deriving requests from gctx ends them.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		a.logger.Info("Serving websocket.", zap.String("addr", sc.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func typeNames(r *protocol.Router) []string {
	types := r.Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
