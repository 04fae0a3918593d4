package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Share/internal/adapters/http"
	sig "github.com/dkeye/Share/internal/adapters/signal"
	"github.com/dkeye/Share/internal/adapters/storage"
	"github.com/dkeye/Share/internal/app"
	"github.com/dkeye/Share/internal/app/orch"
	"github.com/dkeye/Share/internal/app/quota"
	"github.com/dkeye/Share/internal/config"
	"github.com/dkeye/Share/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging("info")
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.Int("port", 8080, "listen port")
	f.String("mode", "release", "gin mode (release|debug)")
	f.String("log_level", "info", "zerolog level")
	f.String("guest_limit", "2GiB", "byte ceiling for guest identities")
	f.String("ledger_path", "", "badger directory for quota accounts (empty keeps them in memory)")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.OpenBadger(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close ledger store")
		}
	}()

	m := metrics.New()
	reg := app.NewRegistry()
	o := orch.New(reg, app.SimplePolicy{}, m)
	o.CloseSuperseded = cfg.CloseSuperseded

	ledger := quota.NewLedger(quota.StaticPolicy{Ceiling: cfg.GuestLimit, GuestPrefix: cfg.GuestPrefix}, store, m)
	limiter := sig.NewConnectLimiter(cfg.ConnectLimit, cfg.ConnectInterval)
	ctl := sig.NewSignalWSController(o, limiter, sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg, &router.Server{Orch: o, Ledger: ledger, Metrics: m, Signal: ctl})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("share relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server exited gracefully")
	return err
}
