package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	migrations "github.com/mikeydub/go-union/db"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/persist/postgres"
)

var (
	user           string
	promptPassword bool
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the enrichment_records schema",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := connectionOptions()
		if err != nil {
			return err
		}
		return migrations.RunEnrichmentDBMigration(opts...)
	},
}

var downCmd = &cobra.Command{
	Use:   "down [STEPS]",
	Short: "Revert the last STEPS migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := strconv.Atoi(args[0])
		if err != nil || steps < 1 {
			return fmt.Errorf("invalid step count '%s'", args[0])
		}

		opts, err := connectionOptions()
		if err != nil {
			return err
		}

		client, err := postgres.NewClient(opts...)
		if err != nil {
			return err
		}
		defer client.Close()

		m, err := migrations.Rollback(client, migrations.EnrichmentMigrations, steps)
		if m != nil {
			defer m.Close()
		}
		if err != nil && err != migrate.ErrNoChange {
			return err
		}
		return nil
	},
}

func init() {
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "postgres")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.AutomaticEnv()

	logger.InitWithDefaults("local")

	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "", "role to migrate as, defaults to POSTGRES_USER")
	rootCmd.PersistentFlags().BoolVarP(&promptPassword, "password", "p", false, "prompt for the role's password")
	rootCmd.AddCommand(upCmd, downCmd)
}

func connectionOptions() ([]postgres.ConnectionOption, error) {
	var opts []postgres.ConnectionOption
	if user != "" {
		opts = append(opts, postgres.WithUser(user))
	}

	if promptPassword {
		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, err
		}
		opts = append(opts, postgres.WithPassword(string(pw)))
	}

	return opts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
