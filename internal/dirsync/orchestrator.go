package dirsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/roster/internal/directory"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"go.uber.org/zap"
)

var errMissingReconciler = errors.New("reconciler is required")

// SourceFactory builds the directory adapter for a stored configuration.
type SourceFactory func(provider string, rawConfig []byte) (directory.Source, error)

// NewSourceFactory returns a factory backed by directory.NewSource.
func NewSourceFactory(opts directory.Options) SourceFactory {
	return func(provider string, rawConfig []byte) (directory.Source, error) {
		return directory.NewSource(provider, rawConfig, opts)
	}
}

// RunError attributes a fatal run failure to its tenant and provider.
type RunError struct {
	TenantID string
	Provider string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("sync of %s for tenant %s failed: %v", e.Provider, e.TenantID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// RunObserver is notified after every (tenant, provider) run attempt.
type RunObserver interface {
	RunFinished(summary Summary)
}

// OrchestratorConfig describes the dependencies of an Orchestrator.
type OrchestratorConfig struct {
	Reconciler  *Reconciler
	SyncConfigs SyncConfigStore
	Sources     SourceFactory
	Lock        RunLock
	Observer    RunObserver
	Logger      *zap.Logger
}

// Orchestrator runs the reconciler over stored sync configurations.
type Orchestrator struct {
	reconciler  *Reconciler
	syncConfigs SyncConfigStore
	sources     SourceFactory
	lock        RunLock
	observer    RunObserver
	logger      *zap.Logger
}

// NewOrchestrator validates the configuration. Sources and Lock default to
// directory.NewSource and an in-process lock.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Reconciler == nil {
		return nil, errMissingReconciler
	}
	if cfg.SyncConfigs == nil {
		return nil, errMissingSyncConfigStore
	}
	sources := cfg.Sources
	if sources == nil {
		sources = NewSourceFactory(directory.Options{Logger: cfg.Logger})
	}
	lock := cfg.Lock
	if lock == nil {
		lock = NewLocalRunLock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		reconciler:  cfg.Reconciler,
		syncConfigs: cfg.SyncConfigs,
		sources:     sources,
		lock:        lock,
		observer:    cfg.Observer,
		logger:      logger,
	}, nil
}

// RunSync reconciles the sync configs of one tenant, or of every tenant when
// tenantID is nil.
//
// A tenant-scoped run fails up front with ErrNoSyncConfig or
// *directory.UnknownProviderError. Provider failures are isolated in both
// modes: a tenant-scoped run returns every summary together with the joined
// *RunError values, while an all-tenant run only logs them.
func (o *Orchestrator) RunSync(ctx context.Context, tenantID *string) ([]Summary, error) {
	if tenantID == nil {
		return o.runAll(ctx)
	}
	return o.runTenant(ctx, *tenantID)
}

func (o *Orchestrator) runTenant(ctx context.Context, tenantID string) ([]Summary, error) {
	configs, err := o.syncConfigs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sync configs for tenant %s: %w", tenantID, err)
	}
	if len(configs) == 0 {
		return nil, ErrNoSyncConfig
	}
	for _, config := range configs {
		if !roster.IsKnownProvider(config.Provider) {
			return nil, &directory.UnknownProviderError{Provider: config.Provider}
		}
	}

	summaries := make([]Summary, 0, len(configs))
	var failures []error
	for _, config := range configs {
		summary, err := o.runOne(ctx, config)
		summaries = append(summaries, summary)
		if err != nil {
			failures = append(failures, &RunError{TenantID: config.TenantID, Provider: config.Provider, Err: err})
		}
	}
	return summaries, errors.Join(failures...)
}

func (o *Orchestrator) runAll(ctx context.Context) ([]Summary, error) {
	configs, err := o.syncConfigs.ListAll(ctx)
	if err != nil {
		o.logger.Error("scheduled sync could not list configurations", zap.Error(err))
		return nil, fmt.Errorf("list sync configs: %w", err)
	}

	summaries := make([]Summary, 0, len(configs))
	failed := 0
	for _, config := range configs {
		if !roster.IsKnownProvider(config.Provider) {
			o.logger.Warn("scheduled sync skipped unknown provider",
				zap.String("tenant_id", config.TenantID),
				zap.String("provider", config.Provider),
				zap.String("sync_config_id", config.ID))
			continue
		}
		summary, err := o.runOne(ctx, config)
		summaries = append(summaries, summary)
		if err != nil {
			failed++
			o.logger.Error("scheduled sync failed for tenant",
				zap.String("tenant_id", config.TenantID),
				zap.String("provider", config.Provider),
				zap.Error(err))
		}
	}
	o.logger.Info("scheduled sync finished",
		zap.Int("configs", len(configs)),
		zap.Int("runs", len(summaries)),
		zap.Int("failed", failed))
	return summaries, nil
}

func (o *Orchestrator) runOne(ctx context.Context, config roster.SyncConfig) (Summary, error) {
	summary, err := o.attempt(ctx, config)
	if o.observer != nil {
		o.observer.RunFinished(summary)
	}
	return summary, err
}

func (o *Orchestrator) attempt(ctx context.Context, config roster.SyncConfig) (Summary, error) {
	summary := Summary{
		TenantID:     config.TenantID,
		Provider:     config.Provider,
		SyncConfigID: config.ID,
		State:        StateNotStarted,
		SkipReasons:  []SkipReason{},
	}

	release, err := o.lock.Acquire(ctx, RunKey(config.TenantID, config.Provider))
	if err != nil {
		summary.Err = err
		return summary, err
	}
	defer release()

	source, err := o.sources(config.Provider, config.Config)
	if err != nil {
		summary.State = StateFailed
		summary.Err = err
		return summary, err
	}
	return o.reconciler.Run(ctx, config, source)
}
