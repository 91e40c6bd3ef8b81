package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/agentrelay/internal/config"
	"github.com/agentrelay/internal/database"
)

// MigrateCommand returns the migrate command. The archive tables are
// optional: a deployment can run base-only and the server degrades to
// archive-unaware queries until the overlay schema is applied.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "base-only",
				Usage: "Apply only the base schema, without the archive overlay tables",
			},
		},
		Action: runMigrate,
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("base-only") {
		if err := database.MigrateBase(c.Context, db); err != nil {
			return err
		}
		fmt.Println("Base schema applied")
		return nil
	}

	if err := database.Migrate(c.Context, db); err != nil {
		return err
	}
	fmt.Println("Schema applied")
	return nil
}
