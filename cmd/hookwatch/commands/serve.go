// Package commands holds the hookwatch CLI subcommands.
package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookwatch/hookwatch/config"
	"github.com/hookwatch/hookwatch/db"
	"github.com/hookwatch/hookwatch/logger"
	"github.com/hookwatch/hookwatch/scheduler"
	"github.com/hookwatch/hookwatch/server"
	"github.com/hookwatch/hookwatch/store"
)

// shutdownGrace bounds how long in-flight HTTP requests may drain.
const shutdownGrace = 10 * time.Second

// NewServeCmd builds the serve subcommand.
func NewServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configFile)
		},
	}
}

func runServe(configFile string) error {
	log := logger.Logger

	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return err
	}

	jobs := store.NewStore(database)
	execs := store.NewExecutionStore(database)
	notifs := store.NewNotificationStore(database)

	hub := server.NewHub(log)

	sched, err := scheduler.New(cfg, jobs, execs, notifs, hub, log)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, jobs, execs, notifs, sched, hub, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Infow("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown incomplete", "error", err)
	}

	sched.Stop()
	return nil
}

func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromFile(configFile)
	}
	return config.Load()
}
