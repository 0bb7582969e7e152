package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draxon/draxon-bots/internal/commands"
	"github.com/draxon/draxon-bots/internal/config"
	"github.com/draxon/draxon-bots/internal/database"
	"github.com/draxon/draxon-bots/internal/discord"
	"github.com/draxon/draxon-bots/internal/logging"
	"github.com/draxon/draxon-bots/internal/pulse"
	"github.com/draxon/draxon-bots/internal/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const customStatus = "🚨 /sos for emergencies"

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "DraXon PULSE emergency alert bot",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newAlertsCommand())

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
	cmd.PersistentFlags().String("discord-token", "", "Discord bot token (overrides env)")
	cmd.PersistentFlags().String("guild-id", "", "Register commands for this guild only")
	cmd.PersistentFlags().Duration("cooldown", defaults.GetDuration("pulse.cooldown"), "Minimum time between alerts from one member")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "discord.token", "discord-token")
	bindFlag(cmd, "discord.guild_id", "guild-id")
	bindFlag(cmd, "pulse.cooldown", "cooldown")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runBot(ctx context.Context) error {
	pulseConfig, err := config.LoadPulse(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(pulseConfig.LogLevel, "pulse")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(pulseConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	settingsService, err := settings.NewService(settings.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	discordClient, err := discord.New(discord.Config{Token: pulseConfig.Discord.Token, Logger: logger.Named("discord")})
	if err != nil {
		return err
	}
	alerts, err := pulse.NewService(pulse.Config{
		Database:     db,
		Platform:     discordClient,
		Channels:     settingsService,
		Cooldown:     pulseConfig.Cooldown,
		AllowedRoles: pulseConfig.AllowedRoles,
		AdminRole:    pulseConfig.AdminRole,
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	router := commands.NewRouter(logger.Named("commands"))
	if err := commands.RegisterPulse(router, alerts, logger); err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interactions := discord.NewInteractions(discordClient, router, pulseConfig.Discord.GuildID, logger.Named("interactions"))
	interactions.Attach(signalCtx)
	if err := discordClient.Open(); err != nil {
		return err
	}
	defer discordClient.Close() //nolint:errcheck
	if err := interactions.Register(); err != nil {
		return err
	}
	if err := discordClient.Session().UpdateCustomStatus(customStatus); err != nil {
		logger.Warn("custom status update failed", zap.Error(err))
	}

	logger.Info("pulse ready", zap.Duration("cooldown", pulseConfig.Cooldown))
	<-signalCtx.Done()
	logger.Info("pulse stopped")
	return nil
}

func newAlertsCommand() *cobra.Command {
	var (
		guildID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print the most recent emergency alerts for a guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			databasePath := viper.GetString("database.path")
			if databasePath == "" {
				return fmt.Errorf("database.path is required")
			}
			db, err := database.OpenSQLite(databasePath, nil)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			alerts, err := pulse.ListAlerts(cmd.Context(), db, guildID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, alert := range alerts {
				fmt.Fprintf(out, "%s  %-20s  %s  %s\n",
					alert.CreatedAt.UTC().Format(time.RFC3339), alert.Username, alert.Location, alert.Situation)
			}
			if len(alerts) == 0 {
				fmt.Fprintln(out, "no alerts recorded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Guild ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum alerts to print")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}
