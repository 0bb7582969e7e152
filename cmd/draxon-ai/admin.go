package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/draxon/draxon-bots/internal/auth"
	"github.com/draxon/draxon-bots/internal/config"
	"github.com/draxon/draxon-bots/internal/database"
	"github.com/draxon/draxon-bots/internal/logging"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newIssueTokenCommand() *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue an operator API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadAdmin(viper.GetViper())
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = appConfig.Admin.TokenTTL
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.Admin.SigningSecret),
				Issuer:        appConfig.Admin.Issuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueOperatorToken(cmd.Context(), subject, scopes...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s, scopes: %s\n",
				time.Duration(expiresIn)*time.Second, strings.Join(scopesOrDefault(scopes), ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Operator name recorded in the token")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, fmt.Sprintf("Granted scopes (%s, %s); all when omitted", auth.ScopeRead, auth.ScopeReconcile))
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime; defaults to admin.token_ttl")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newCleanupCommand() *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune role and verification history older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadAdmin(viper.GetViper())
			if err != nil {
				return err
			}
			retention := appConfig.HistoryRetention
			if retentionDays > 0 {
				retention = time.Duration(retentionDays) * 24 * time.Hour
			}
			if retention <= 0 {
				return fmt.Errorf("retention must be positive")
			}

			logger, err := logging.NewLogger(appConfig.LogLevel, "draxon-ai")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			store, err := members.NewStore(members.StoreConfig{
				Database:   db,
				Clock:      time.Now,
				IDProvider: members.NewUUIDProvider(),
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			return cleanupHistory(cmd.Context(), store, retention, logger)
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Override history.retention_days")
	return cmd
}

func scopesOrDefault(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{auth.ScopeRead, auth.ScopeReconcile}
	}
	return scopes
}
