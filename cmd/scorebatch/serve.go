package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"scorebatch/internal/api"
	"scorebatch/internal/task"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	seedTimeout       = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the queue API. Persisted queue records are restored first:
tasks interrupted mid-upload become errors, tasks that already reached the
engine resume polling. The engine's report history is fetched once at
startup so new uploads avoid names already taken by finished reports.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	manager, store, err := buildManager(cfg)
	if err != nil {
		return err
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	manager.SetBaseContext(baseCtx)

	if err := manager.LoadFromDisk(); err != nil {
		return err
	}
	seedHistory(manager)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger())
	api.NewAPI(manager, store).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("engine", cfg.EngineURL).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()
	gracefulShutdown(srv, baseCancel, manager)
	return nil
}

// seedHistory is best-effort: an unreachable engine at startup must not
// prevent the queue from coming up.
func seedHistory(manager *task.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()
	if err := manager.SeedHistory(ctx); err != nil {
		log.Warn().Err(err).Msg("history seeding failed, name dedup starts empty")
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, manager *task.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	manager.Stop()
	cancelBase()
	if !manager.WaitAll(ctx) {
		log.Warn().Msg("poll loops did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
