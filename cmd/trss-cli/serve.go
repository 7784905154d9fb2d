package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/robertmeta/trss-cli/configfile"
	"github.com/robertmeta/trss-cli/feed"
	"github.com/robertmeta/trss-cli/job"
	"github.com/robertmeta/trss-cli/server"
	"github.com/robertmeta/trss-cli/store"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the config API and the scheduled fetch job",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Value:   getDefaultDBPath(),
				Usage:   "Database file path",
				EnvVars: []string{"TRSS_DB"},
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Value:   ":9093",
				Usage:   "Address to listen on",
				EnvVars: []string{"TRSS_LISTEN"},
			},
			&cli.IntFlag{
				Name:  "update",
				Value: 60,
				Usage: "Minutes between scheduled job runs",
			},
			&cli.StringFlag{
				Name:  "seed",
				Usage: "Config file (config.toml or config.json) to load into an empty database",
			},
		},
		Action: serve,
	}
}

func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "trss.db"
	}
	return filepath.Join(home, ".config", "trss-cli", "trss.db")
}

func getStore(c *cli.Context) (*store.Store, error) {
	dbPath := c.String("db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// seed loads the config file at path into s unless s already holds entries.
func seed(ctx context.Context, s *store.Store, path string) error {
	existing, err := s.ListConfigs(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("database not empty, skipping seed", "path", path, "count", len(existing))
		return nil
	}

	entries, err := configfile.Load(path)
	if err != nil {
		return err
	}
	if err := s.ReplaceConfigs(ctx, entries); err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}
	slog.Info("seeded database", "path", path, "count", len(entries))
	return nil
}

func serve(c *cli.Context) error {
	update := c.Int("update")
	if update <= 0 {
		return cli.Exit("--update must be positive", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	ctx, stop := runContext(c.Context)
	defer stop()

	if path := c.String("seed"); path != "" {
		if err := seed(ctx, s, path); err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
	}

	j := job.New(s, s, feed.NewFetcher())
	jobErr := make(chan error, 1)
	go func() {
		jobErr <- j.Start(ctx, time.Duration(update)*time.Minute)
	}()

	err = server.New(s, j).ListenAndServe(ctx, c.String("listen"))
	stop()
	if jerr := <-jobErr; jerr != nil && !errors.Is(jerr, context.Canceled) {
		slog.Error("job stopped", "err", jerr)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return cli.Exit(fmt.Sprintf("Server failed: %v", err), ExitGeneralError)
	}
	return nil
}
