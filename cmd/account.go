package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/agentrelay/internal/accounts"
	"github.com/agentrelay/internal/api/auth"
	"github.com/agentrelay/internal/config"
	"github.com/agentrelay/internal/database"
)

// AccountCommand returns the account administration command.
func AccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage operator accounts and agent API keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an operator account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, Usage: "Account email"},
					&cli.StringFlag{Name: "password", Required: true, Usage: "Account password"},
				},
				Action: runAccountCreate,
			},
			{
				Name:  "create-key",
				Usage: "Issue an agent API key for an account",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "account", Required: true, Usage: "Account id"},
					&cli.StringFlag{Name: "label", Usage: "Key label", Value: "default"},
				},
				Action: runAccountCreateKey,
			},
		},
	}
}

func runAccountCreate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	account, err := accounts.NewStore(db).Create(c.Context, c.String("email"), c.String("password"))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Printf("Created account %d (%s)\n", account.ID, account.Email)
	return nil
}

func runAccountCreateKey(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	key, plaintext, err := auth.NewAPIKeyManager(db).CreateAPIKey(c.Int64("account"), c.String("label"))
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	// The plaintext key is shown exactly once; only its hash is stored.
	fmt.Printf("Created API key %d (%s)\n", key.ID, key.Label)
	fmt.Printf("Key: %s\n", plaintext)
	return nil
}
