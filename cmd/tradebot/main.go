package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m3rciful/tradebot/core/buildinfo"
	corecmd "github.com/m3rciful/tradebot/core/cmd"
	coredatabase "github.com/m3rciful/tradebot/core/database"
	"github.com/m3rciful/tradebot/internal/app"
	"github.com/m3rciful/tradebot/internal/config"
	"github.com/m3rciful/tradebot/migrations"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, _ []string) error {
		return corecmd.Run(cmd.Context(), corecmd.Options{
			ConfigPath:        configPath,
			ConfigEnvVar:      "CONFIG_PATH",
			DefaultConfigPath: defaultConfigPath,
			LoadConfig:        app.LoadConfig,
			Bootstrap:         app.Bootstrap,
		})
	}

	root := &cobra.Command{
		Use:          "tradebot",
		Short:        "Telegram trading bot for Solana",
		Version:      fmt.Sprintf("%s (%s, %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		SilenceUsage: true,
		RunE:         serve,
		Args:         cobra.NoArgs,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(newMigrateCommand(&configPath))
	return root
}

func newMigrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := loadDatabase(*configPath)
			if err != nil {
				return err
			}
			if err := coredatabase.RunMigrations(db, migrations.FS); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := loadDatabase(*configPath)
			if err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	})
	return cmd
}

func loadDatabase(explicit string) (coredatabase.Config, error) {
	path, err := corecmd.ResolveConfigPath(explicit, "CONFIG_PATH", defaultConfigPath)
	if err != nil {
		return coredatabase.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return coredatabase.Config{}, err
	}
	if !cfg.Database.Enabled() {
		return coredatabase.Config{}, fmt.Errorf("database is not configured in %s", path)
	}
	return cfg.Database, nil
}

func printVersion(cmd *cobra.Command, db coredatabase.Config) error {
	version, dirty, err := coredatabase.MigrationVersion(db, migrations.FS)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
	return nil
}
