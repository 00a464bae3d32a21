package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/config"
	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/directory"
	"github.com/MarcoPoloResearchLab/roster/internal/dirsync"
	"github.com/MarcoPoloResearchLab/roster/internal/logging"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// appRuntime holds the process-wide dependencies shared by every command.
type appRuntime struct {
	config  config.AppConfig
	logger  *zap.Logger
	stores  *roster.Stores
	tokens  *auth.TokenIssuer
	closers []func() error
}

func newRuntime() (*appRuntime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	rt := &appRuntime{config: appConfig, logger: logger}
	if appConfig.ConfigFileInUse != "" {
		logger.Info("configuration loaded", zap.String("file", appConfig.ConfigFileInUse))
	}

	db, err := database.Open(appConfig.Database(), logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, sqlDB.Close)

	stores, err := roster.NewStores(roster.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: roster.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.stores = stores

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.tokens = tokens
	return rt, nil
}

// orchestrator wires the reconciler, directory sources and run lock. observer may be nil.
func (rt *appRuntime) orchestrator(observer dirsync.RunObserver) (*dirsync.Orchestrator, error) {
	reconciler, err := dirsync.NewReconciler(dirsync.ReconcilerConfig{
		Members:     rt.stores.Members,
		Teams:       rt.stores.Teams,
		SyncConfigs: rt.stores.SyncConfigs,
		Clock:       time.Now,
		Logger:      rt.logger,
	})
	if err != nil {
		return nil, err
	}

	lock, err := rt.runLock()
	if err != nil {
		return nil, err
	}

	return dirsync.NewOrchestrator(dirsync.OrchestratorConfig{
		Reconciler:  reconciler,
		SyncConfigs: rt.stores.SyncConfigs,
		Sources: dirsync.NewSourceFactory(directory.Options{
			Timeout: rt.config.SyncTimeout,
			Logger:  rt.logger,
		}),
		Lock:     lock,
		Observer: observer,
		Logger:   rt.logger,
	})
}

// runLock shares run exclusion through Redis when an address is configured.
func (rt *appRuntime) runLock() (dirsync.RunLock, error) {
	if rt.config.RedisAddress == "" {
		return dirsync.NewLocalRunLock(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rt.config.RedisAddress,
		Password: rt.config.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", rt.config.RedisAddress, err)
	}
	rt.closers = append(rt.closers, client.Close)
	rt.logger.Info("sync run lock backed by redis", zap.String("address", rt.config.RedisAddress))
	return dirsync.NewRedisRunLock(client, 0, rt.logger), nil
}

// Close releases resources in reverse acquisition order and flushes the logger.
func (rt *appRuntime) Close() {
	for index := len(rt.closers) - 1; index >= 0; index-- {
		if err := rt.closers[index](); err != nil {
			rt.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
