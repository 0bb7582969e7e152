package main

import (
	"errors"
	"os"

	"github.com/draxon/draxon-bots/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// version is stamped at build time with -ldflags "-X main.version=...".
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "draxon-ai",
		Short: "DraXon membership bot and operator API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand(), newCleanupCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Operator token signing secret (overrides env)")
	cmd.Flags().String("http-address", defaults.GetString("http.address"), "Operator API listen address")
	cmd.Flags().String("discord-token", "", "Discord bot token (overrides env)")
	cmd.Flags().String("guild-id", "", "Register commands for this guild only")
	cmd.Flags().String("org-sid", "", "RSI organization SID")

	bindPersistentFlag(cmd, "database.path", "database-path")
	bindPersistentFlag(cmd, "log.level", "log-level")
	bindPersistentFlag(cmd, "admin.signing_secret", "signing-secret")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "discord.token", "discord-token")
	bindFlag(cmd, "discord.guild_id", "guild-id")
	bindFlag(cmd, "rsi.org_sid", "org-sid")
}

func bindPersistentFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("draxon")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
