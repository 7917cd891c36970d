package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/rps-lan/internal/config"
	"github.com/DoyleJ11/rps-lan/internal/discovery"
	"github.com/DoyleJ11/rps-lan/internal/httpapi"
	"github.com/DoyleJ11/rps-lan/internal/hub"
	"github.com/DoyleJ11/rps-lan/internal/profile"
	"github.com/DoyleJ11/rps-lan/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.LocalAddress == "" {
		if cfg.LocalAddress, err = discovery.LocalAddress(); err != nil {
			return fmt.Errorf("detect local address: %w", err)
		}
	}
	if cfg.BroadcastAddress == "" {
		if cfg.BroadcastAddress, err = discovery.BroadcastAddress(cfg.LocalAddress); err != nil {
			return fmt.Errorf("derive broadcast address: %w", err)
		}
	}
	logger.Info("network",
		zap.String("local", cfg.LocalAddress),
		zap.String("broadcast", cfg.BroadcastAddress),
		zap.Int("server_port", cfg.ServerPort),
		zap.Int("broadcast_port", cfg.BroadcastPort))

	var prof session.Profile
	if cfg.DatabaseURL != "" {
		store, err := profile.OpenPostgres(cfg.DatabaseURL, cfg.Username, logger.Named("profile"))
		if err != nil {
			return err
		}
		defer store.Close()
		prof = store
	} else {
		prof = profile.NewMemory(cfg.Username)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, logger.Named("hub"))
	ctrl := session.NewController(ctx, session.Config{
		LocalAddress:     cfg.LocalAddress,
		BroadcastAddress: cfg.BroadcastAddress,
		ServerPort:       cfg.ServerPort,
		BroadcastPort:    cfg.BroadcastPort,
		DiscoveryTimeout: cfg.DiscoveryTimeout,
		ConnectTimeout:   cfg.ConnectTimeout,
		CloseGrace:       cfg.CloseGrace,
	}, prof, cfg, h, logger.Named("session"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, ctrl, logger.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-ctrl.Done():
		}
		// Let an active session send its DISCONNECT before the process exits.
		ctrl.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shut down", zap.Error(err))
	return err
}
