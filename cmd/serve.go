package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/agentrelay/internal/api"
	"github.com/agentrelay/internal/attachments"
	"github.com/agentrelay/internal/config"
	"github.com/agentrelay/internal/database"
	"github.com/agentrelay/internal/jobqueue"
)

// ServeCommand returns the CLI command for starting the relay server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the relay server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-maintenance",
				Usage: "Skip starting the background maintenance queue",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(c.Context, db); err != nil {
		return err
	}

	blobs, err := attachments.NewDiskStore(cfg.Blob.Dir)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	if !c.Bool("no-maintenance") {
		dbURL, err := database.ResolveURL(cfg.Database.URL)
		if err != nil {
			return err
		}
		queue, err := jobqueue.NewJobQueue(dbURL, jobqueue.QueueConfigFromApp(cfg), blobs)
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := queue.Start(c.Context); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(ctx); err != nil {
				log.Error().Err(err).Msg("job queue shutdown failed")
			}
		}()
	}

	log.Info().Int("port", cfg.Server.Port).Msg("starting relay server")
	server := api.NewServer(cfg, db, blobs)
	return server.Start()
}
