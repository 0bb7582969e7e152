package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/draxon/draxon-bots/internal/auth"
	"github.com/draxon/draxon-bots/internal/commands"
	"github.com/draxon/draxon-bots/internal/config"
	"github.com/draxon/draxon-bots/internal/counters"
	"github.com/draxon/draxon-bots/internal/database"
	"github.com/draxon/draxon-bots/internal/discord"
	"github.com/draxon/draxon-bots/internal/events"
	"github.com/draxon/draxon-bots/internal/incidents"
	"github.com/draxon/draxon-bots/internal/linking"
	"github.com/draxon/draxon-bots/internal/logging"
	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/notify"
	"github.com/draxon/draxon-bots/internal/promotion"
	"github.com/draxon/draxon-bots/internal/ranks"
	"github.com/draxon/draxon-bots/internal/reconcile"
	"github.com/draxon/draxon-bots/internal/rsi"
	"github.com/draxon/draxon-bots/internal/scheduler"
	"github.com/draxon/draxon-bots/internal/server"
	"github.com/draxon/draxon-bots/internal/settings"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	jobReconcile = "reconcile"
	jobCounters  = "counters"
	jobIncidents = "incidents"
	jobCleanup   = "history-cleanup"

	cleanupInterval = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func runBot(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
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

	ladder, err := ranks.NewLadder(appConfig.Ranks.Ladder)
	if err != nil {
		return err
	}

	store, err := members.NewStore(members.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: members.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	settingsService, err := settings.NewService(settings.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	httpClient := rsi.NewHTTPClient()
	rsiClient, err := rsi.NewClient(rsi.ClientConfig{
		BaseURL:    appConfig.RSI.BaseURL,
		APIKey:     appConfig.RSI.APIKey,
		Version:    appConfig.RSI.Version,
		Mode:       appConfig.RSI.Mode,
		PageSize:   appConfig.RSI.PageSize,
		HTTPClient: httpClient,
		Limiter:    rate.NewLimiter(rate.Limit(appConfig.RSI.RequestsPerSecond), 1),
		Logger:     logger.Named("rsi"),
	})
	if err != nil {
		return err
	}

	discordClient, err := discord.New(discord.Config{Token: appConfig.Discord.Token, Logger: logger.Named("discord")})
	if err != nil {
		return err
	}

	notifier, err := notify.New(notify.Config{Messenger: discordClient, Channels: settingsService, Logger: logger})
	if err != nil {
		return err
	}

	dispatcher := events.NewDispatcher()
	engine, err := reconcile.NewEngine(reconcile.Config{
		Directory: rsiClient,
		Store:     store,
		Platform:  discordClient,
		Notifier:  notifier,
		Policy: reconcile.Policy{
			Ladder:            ladder,
			LeadershipCeiling: appConfig.Ranks.LeadershipCeiling,
			DefaultDemotion:   appConfig.Ranks.DefaultDemotion,
			Unaffiliated:      appConfig.Ranks.Unaffiliated,
		},
		OrgSID:    appConfig.RSI.OrgSID,
		Publisher: dispatcher,
		Clock:     time.Now,
		Logger:    logger.Named("reconcile"),
	})
	if err != nil {
		return err
	}

	linker, err := linking.NewService(linking.Config{
		Directory: rsiClient,
		Store:     store,
		OrgSID:    appConfig.RSI.OrgSID,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	promoter, err := promotion.NewService(promotion.Config{
		Platform:     discordClient,
		Store:        store,
		Announcer:    notifier,
		Channels:     settingsService,
		Ladder:       ladder,
		ManagerRoles: appConfig.Ranks.ManagerRoles,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	counterUpdater, err := counters.New(counters.Config{Platform: discordClient, Logger: logger})
	if err != nil {
		return err
	}
	monitor, err := incidents.NewMonitor(incidents.Config{
		Source:   incidents.NewFeedSource(appConfig.IncidentsFeedURL, httpClient),
		State:    settingsService,
		Platform: discordClient,
		Logger:   logger.Named("incidents"),
	})
	if err != nil {
		return err
	}

	router := commands.NewRouter(logger.Named("commands"))
	if err := commands.RegisterDraxon(router, commands.DraxonConfig{
		Linker:          linker,
		Promoter:        promoter,
		Settings:        settingsService,
		Stats:           store,
		Reconciler:      engine,
		Roster:          rsiClient,
		Incidents:       monitor,
		Members:         discordClient,
		Ladder:          ladder,
		OrgSID:          appConfig.RSI.OrgSID,
		LeadershipRoles: appConfig.Ranks.ManagerRoles,
		AdminRole:       appConfig.Ranks.AdminRole,
		Version:         version,
		Logger:          logger,
	}); err != nil {
		return err
	}

	jobs := scheduler.New(scheduler.Config{Clock: time.Now, Logger: logger.Named("scheduler")})
	for _, job := range []scheduler.Job{
		{
			Name:       jobReconcile,
			Interval:   appConfig.ReconcileInterval,
			MinElapsed: appConfig.ReconcileMinGap,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				return runReconcile(ctx, engine, logger.Named("reconcile"))
			},
		},
		{Name: jobCounters, Interval: appConfig.CountersInterval, RunOnStart: true, Run: counterUpdater.Run},
		{Name: jobIncidents, Interval: appConfig.IncidentsInterval, RunOnStart: true, Run: monitor.Run},
		{
			Name:     jobCleanup,
			Interval: cleanupInterval,
			Run: func(ctx context.Context) error {
				return cleanupHistory(ctx, store, appConfig.HistoryRetention, logger)
			},
		},
	} {
		if err := jobs.Register(job); err != nil {
			return err
		}
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.Admin.SigningSecret),
		Issuer:        appConfig.Admin.Issuer,
		TokenTTL:      appConfig.Admin.TokenTTL,
	})
	if err != nil {
		return err
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:     tokenIssuer,
		Members:    store,
		Reconciler: engine,
		Events:     dispatcher,
		Jobs:       jobs,
		JobNames:   []string{jobReconcile, jobCounters, jobIncidents, jobCleanup},
		Logger:     logger.Named("http"),
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interactions := discord.NewInteractions(discordClient, router, appConfig.Discord.GuildID, logger.Named("interactions"))
	interactions.Attach(signalCtx)
	if err := discordClient.Open(); err != nil {
		return err
	}
	defer discordClient.Close() //nolint:errcheck
	if err := interactions.Register(); err != nil {
		return err
	}

	jobs.Start(signalCtx)

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("operator api starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	jobs.Wait()
	logger.Info("draxon-ai stopped")
	return runErr
}

type passRunner interface {
	Run(ctx context.Context) ([]reconcile.Report, error)
}

// runReconcile runs a scheduled pass. Aborted guilds are logged and fail the job
// only when no guild completed.
func runReconcile(ctx context.Context, engine passRunner, logger *zap.Logger) error {
	reports, err := engine.Run(ctx)
	if errors.Is(err, reconcile.ErrPassInProgress) {
		return nil
	}
	if err != nil {
		return err
	}
	var aborted []error
	for _, report := range reports {
		if !report.Aborted {
			continue
		}
		logger.Warn("scheduled reconciliation aborted",
			zap.String("guild_id", report.GuildID),
			zap.String("guild_name", report.GuildName),
			zap.String("error", report.Error))
		aborted = append(aborted, report.Cause)
	}
	if len(aborted) > 0 && len(aborted) == len(reports) {
		return fmt.Errorf("reconcile: every guild aborted: %w", errors.Join(aborted...))
	}
	return nil
}

func cleanupHistory(ctx context.Context, store *members.Store, retention time.Duration, logger *zap.Logger) error {
	result, err := store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	logger.Info("history cleaned up",
		zap.Int64("role_changes", result.RoleChanges),
		zap.Int64("verifications", result.Verifications),
		zap.Duration("retention", retention))
	return nil
}
