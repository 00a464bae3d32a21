package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/config"
	"github.com/MarcoPoloResearchLab/roster/internal/dirsync"
	"github.com/MarcoPoloResearchLab/roster/internal/seed"
	"github.com/MarcoPoloResearchLab/roster/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roster-api",
		Short: "Roster backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newSyncCommand(), newSeedCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database connection string")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Admin token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")
	cmd.PersistentFlags().String("sync-schedule", defaults.GetString("sync.schedule"), "Cron expression for the all-tenant sync")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the shared sync lock")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "sync.schedule", "sync-schedule")
	bindFlag(cmd, "redis.address", "redis-address")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	return config.ReadFile(viper.GetViper(), cfgFile)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newSyncCommand() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a directory sync once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var target *string
			if tenantID != "" {
				target = &tenantID
			}
			return runSyncOnce(cmd.Context(), target)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Only sync this tenant")
	return cmd
}

func newSeedCommand() *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision tenants from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), fixturePath)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "file", "", "Path to the seed fixture")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssueToken(cmd, subject)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject recorded in the token")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runServer(ctx context.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	events := server.NewSyncEventDispatcher()
	orchestrator, err := rt.orchestrator(events)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:         rt.tokens,
		Tenants:        rt.stores.Tenants,
		SyncConfigs:    rt.stores.SyncConfigs,
		Sync:           orchestrator,
		Events:         events,
		AllowedOrigins: rt.config.AllowedOrigins,
		Logger:         rt.logger,
	})
	if err != nil {
		return err
	}

	scheduler, err := dirsync.NewScheduler(dirsync.SchedulerConfig{
		Runner:     orchestrator,
		Schedule:   rt.config.SyncSchedule,
		RunOnStart: rt.config.SyncRunOnStart,
		Logger:     rt.logger,
	})
	if err != nil {
		return fmt.Errorf("sync scheduler: %w", err)
	}

	httpServer := &http.Server{
		Addr:    rt.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start(signalCtx)
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSyncOnce(ctx context.Context, tenantID *string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	orchestrator, err := rt.orchestrator(nil)
	if err != nil {
		return err
	}
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summaries, err := orchestrator.RunSync(signalCtx, tenantID)
	for _, summary := range summaries {
		rt.logger.Info("sync summary",
			zap.String("tenant_id", summary.TenantID),
			zap.String("provider", summary.Provider),
			zap.String("state", string(summary.State)),
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("skipped", summary.Skipped))
	}
	return err
}

func runSeed(ctx context.Context, fixturePath string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	fixture, err := seed.LoadFile(fixturePath)
	if err != nil {
		return err
	}
	report, err := seed.Apply(ctx, seed.Stores{
		Tenants:     rt.stores.Tenants,
		Teams:       rt.stores.Teams,
		Members:     rt.stores.Members,
		Badges:      rt.stores.Badges,
		SyncConfigs: rt.stores.SyncConfigs,
	}, fixture, rt.logger)
	if err != nil {
		return err
	}
	rt.logger.Info("seed complete",
		zap.Int("tenants_created", report.TenantsCreated),
		zap.Int("tenants_skipped", report.TenantsSkipped),
		zap.Int("teams", report.Teams),
		zap.Int("badges", report.Badges),
		zap.Int("members", report.Members),
		zap.Int("sync_configs", report.SyncConfigs))
	return nil
}

func runIssueToken(cmd *cobra.Command, subject string) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}
	token, expiresIn, err := tokens.IssueAdminToken(cmd.Context(), subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires in %d seconds\n", expiresIn)
	return nil
}
