// Command server runs the Diplomacy game server: the JSON websocket dialect,
// the DAIDE TCP dialect for bots, and snapshot persistence.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmarais/backchannel/internal/config"
	"github.com/tmarais/backchannel/internal/logger"
	"github.com/tmarais/backchannel/internal/server"
	"github.com/tmarais/backchannel/internal/store"
	"github.com/tmarais/backchannel/internal/transport"
)

// Exit codes: 1 for configuration errors, 2 for persistence errors.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		l := logger.Get()
		l.Error().Err(err).Msg("Configuration failed")
		return 1
	}
	logger.Init(cfg.LogLevel)
	log := logger.With("server")

	st, err := store.Open(cfg.DataDir, logger.With("store"))
	if err != nil {
		log.Error().Err(err).Str("dataDir", cfg.DataDir).Msg("Store open failed")
		return 2
	}
	srv := server.New(cfg, st, logger.With("core"))
	if err := srv.Boot(); err != nil {
		log.Error().Err(err).Msg("Boot failed")
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go srv.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /ws", transport.NewWSHandler(srv, logger.With("ws")))

	httpSrv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Websocket listener started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	if cfg.DAIDEAddr != "" {
		daide := transport.NewDAIDEServer(srv, cfg.DAIDEGameID, logger.With("daide"))
		go func() {
			if err := daide.ListenAndServe(ctx, cfg.DAIDEAddr); err != nil {
				log.Error().Err(err).Msg("DAIDE server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	srv.Shutdown()
	log.Info().Msg("Server stopped")
	return 0
}
