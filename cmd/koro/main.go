// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/koro-app/koro/internal/api"
	"github.com/koro-app/koro/internal/buildinfo"
	"github.com/koro-app/koro/internal/config"
	"github.com/koro-app/koro/internal/database"
	"github.com/koro-app/koro/internal/logger"
	"github.com/koro-app/koro/internal/models"
	"github.com/koro-app/koro/internal/remote"
	"github.com/koro-app/koro/internal/services/activation"
	"github.com/koro-app/koro/internal/services/library"
	"github.com/koro-app/koro/internal/services/sync"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "koro",
		Short: "Offline-capable playback cache",
		Long:  "koro keeps a local media library and activation state in sync with a remote authority, and keeps serving when the link is down.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file or directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the service",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Print(buildinfo.String())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return err
	}

	logger.Setup(cfg.Config)

	if err := cfg.Config.Validate(); err != nil {
		return err
	}

	log.Info().
		Str("version", buildinfo.Version).
		Str("dataDir", cfg.Config.DataDir).
		Msg("Starting koro")

	db, err := database.New(cfg.Config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	activationStore := models.NewActivationStore(db)
	trackStore := models.NewTrackStore(db)
	historyStore := models.NewHistoryStore(db)

	client := remote.NewClient(cfg.Config.RemoteURL, cfg.Config.RemoteAPIKey, cfg.Config.Timeout())
	if !client.IsConfigured() {
		log.Warn().Msg("Remote authority not configured, running fully offline")
	}

	activationService := activation.NewService(activationStore, client)
	syncService := sync.NewService(trackStore, client, cfg.Config.DataDir)
	libraryService := library.NewService(trackStore, historyStore)

	srv := api.NewServer(cfg.Config, activationService, syncService, libraryService)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
