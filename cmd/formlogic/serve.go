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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dlovans/formlogic/internal/config"
	"github.com/dlovans/formlogic/internal/httpapi"
	"github.com/dlovans/formlogic/internal/logging"
	"github.com/dlovans/formlogic/internal/store/postgres"
	"github.com/dlovans/formlogic/pkg/formlogic"
)

func newServeCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("types"); path != "" {
				cfg.Engine.ValidationTypes = path
			}
			logger, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "Environment file to load (default .env)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var (
		source httpapi.Source
		store  *postgres.Store
	)
	if cfg.Database.URL != "" {
		var err error
		store, err = postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer store.Close()
		source = store
		logger.Info().Msg("connected to form store")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; stored-form endpoints are disabled")
	}

	reg, err := serverRegistry(ctx, cfg.Engine, store)
	if err != nil {
		return err
	}
	engine := formlogic.NewEngine(
		formlogic.WithMaxIterations(cfg.Engine.MaxIterations),
		formlogic.WithParallelism(cfg.Engine.Parallelism),
		formlogic.WithRegistry(reg),
		formlogic.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(engine, source, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serverRegistry prefers a validation types file, then the database table,
// then the built-in checks. Stored types without a built-in check are skipped.
func serverRegistry(ctx context.Context, cfg config.EngineConfig, store *postgres.Store) (*formlogic.Registry, error) {
	if cfg.ValidationTypes != "" {
		return loadRegistryFile(cfg.ValidationTypes)
	}
	if store == nil {
		return formlogic.DefaultRegistry(), nil
	}

	types, err := store.LoadValidationTypes(ctx)
	if err != nil {
		return nil, err
	}
	known := make([]formlogic.ValidationType, 0, len(types))
	for _, vt := range types {
		if _, ok := formlogic.DefaultRegistry().Lookup(vt.Key); ok {
			known = append(known, vt)
		}
	}
	reg, err := formlogic.NewRegistry(known...)
	if err != nil {
		return nil, fmt.Errorf("stored validation types: %w", err)
	}
	return reg, nil
}
