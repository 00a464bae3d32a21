// Package dirsync reconciles directory users into roster members.
package dirsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/directory"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"go.uber.org/zap"
)

// State tracks the progress of one reconciliation run.
type State string

const (
	StateNotStarted  State = "not_started"
	StateFetching    State = "fetching"
	StateReconciling State = "reconciling"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Outcome is the per-candidate result.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

var (
	// ErrNoDefaultTeam indicates the tenant has no team to place new members in.
	ErrNoDefaultTeam = errors.New("dirsync: tenant has no default team")
	// ErrNoSyncConfig indicates an on-demand run for a tenant without sync configs.
	ErrNoSyncConfig = errors.New("dirsync: no sync configuration")
	// ErrRunInProgress indicates another run holds the lock for the pair.
	ErrRunInProgress = errors.New("dirsync: run already in progress")

	errMissingMemberStore     = errors.New("member store is required")
	errMissingTeamStore       = errors.New("team store is required")
	errMissingSyncConfigStore = errors.New("sync config store is required")
)

// MemberStore is the member persistence used by the reconciler.
type MemberStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]roster.Member, error)
	Create(ctx context.Context, draft roster.MemberDraft) (roster.Member, error)
	UpdateDirectoryFields(ctx context.Context, memberID string, fields roster.DirectoryFields) (roster.Member, error)
}

// TeamStore resolves the default team of a tenant.
type TeamStore interface {
	FirstByTenant(ctx context.Context, tenantID string) (*roster.Team, error)
}

// SyncConfigStore lists sync configurations and records completed runs.
type SyncConfigStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]roster.SyncConfig, error)
	ListAll(ctx context.Context) ([]roster.SyncConfig, error)
	TouchLastSynced(ctx context.Context, configID string, syncedAt time.Time) error
}

// SkipReason describes one skipped candidate.
type SkipReason struct {
	ExternalID string `json:"externalId,omitempty"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

// Summary aggregates the outcomes of one (tenant, provider) run.
type Summary struct {
	TenantID     string       `json:"tenantId"`
	Provider     string       `json:"provider"`
	SyncConfigID string       `json:"syncConfigId"`
	State        State        `json:"state"`
	Created      int          `json:"created"`
	Updated      int          `json:"updated"`
	Skipped      int          `json:"skipped"`
	SkipReasons  []SkipReason `json:"skipReasons"`
	Err          error        `json:"-"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
}

// Completed reports whether the run reached the end of its candidate loop.
func (s Summary) Completed() bool {
	return s.State == StateCompleted
}

func (s *Summary) record(outcome Outcome, skip *SkipReason) {
	switch outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
		if skip != nil {
			s.SkipReasons = append(s.SkipReasons, *skip)
		}
	}
}

// ReconcilerConfig describes the dependencies of a Reconciler.
type ReconcilerConfig struct {
	Members     MemberStore
	Teams       TeamStore
	SyncConfigs SyncConfigStore
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Reconciler applies directory candidates to the members of one tenant.
type Reconciler struct {
	members     MemberStore
	teams       TeamStore
	syncConfigs SyncConfigStore
	clock       func() time.Time
	logger      *zap.Logger
}

// NewReconciler validates the configuration.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Members == nil {
		return nil, errMissingMemberStore
	}
	if cfg.Teams == nil {
		return nil, errMissingTeamStore
	}
	if cfg.SyncConfigs == nil {
		return nil, errMissingSyncConfigStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		members:     cfg.Members,
		teams:       cfg.Teams,
		syncConfigs: cfg.SyncConfigs,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Run fetches every record from source and reconciles it against the members
// of config's tenant. Fatal errors leave lastSyncedAt untouched; per-candidate
// failures are recorded as skips.
func (r *Reconciler) Run(ctx context.Context, config roster.SyncConfig, source directory.Source) (Summary, error) {
	summary := Summary{
		TenantID:     config.TenantID,
		Provider:     config.Provider,
		SyncConfigID: config.ID,
		State:        StateNotStarted,
		SkipReasons:  []SkipReason{},
		StartedAt:    r.clock().UTC(),
	}
	logger := r.logger.With(
		zap.String("tenant_id", config.TenantID),
		zap.String("provider", config.Provider),
		zap.String("sync_config_id", config.ID))

	r.transition(&summary, logger, StateFetching)
	records, err := source.FetchAll(ctx)
	if err != nil {
		return r.fail(&summary, logger, err)
	}

	r.transition(&summary, logger, StateReconciling)
	existing, err := r.members.ListByTenant(ctx, config.TenantID)
	if err != nil {
		return r.fail(&summary, logger, fmt.Errorf("load members: %w", err))
	}
	defaultTeam, err := r.teams.FirstByTenant(ctx, config.TenantID)
	if err != nil {
		return r.fail(&summary, logger, fmt.Errorf("load default team: %w", err))
	}
	if defaultTeam == nil {
		return r.fail(&summary, logger, ErrNoDefaultTeam)
	}

	byExternalID := make(map[string]string, len(existing))
	for _, member := range existing {
		if member.ExternalID != nil && *member.ExternalID != "" {
			byExternalID[*member.ExternalID] = member.ID
		}
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return r.fail(&summary, logger, fmt.Errorf("reconcile aborted: %w", err))
		}
		outcome, skip := r.apply(ctx, logger, config.TenantID, defaultTeam.ID, byExternalID, record)
		summary.record(outcome, skip)
	}

	finishedAt := r.clock().UTC()
	if err := r.syncConfigs.TouchLastSynced(ctx, config.ID, finishedAt); err != nil {
		return r.fail(&summary, logger, fmt.Errorf("record last sync: %w", err))
	}
	summary.State = StateCompleted
	summary.FinishedAt = finishedAt
	logger.Info("directory sync completed",
		zap.String("state", string(summary.State)),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (r *Reconciler) apply(ctx context.Context, logger *zap.Logger, tenantID, teamID string, byExternalID map[string]string, record directory.RawRecord) (Outcome, *SkipReason) {
	candidate, err := directory.MapRecord(record)
	if err != nil {
		logger.Warn("directory record skipped", zap.String("reason", directory.ReasonIncompleteRecord))
		return OutcomeSkipped, &SkipReason{ExternalID: candidate.ExternalID, Reason: directory.ReasonIncompleteRecord}
	}

	if memberID, ok := byExternalID[candidate.ExternalID]; ok {
		fields := roster.DirectoryFields{Name: candidate.Name, Email: candidate.Email}
		if candidate.Phone != "" {
			phone := candidate.Phone
			fields.Phone = &phone
		}
		if _, err := r.members.UpdateDirectoryFields(ctx, memberID, fields); err != nil {
			return r.skipStorageFailure(logger, candidate.ExternalID, err)
		}
		return OutcomeUpdated, nil
	}

	member, err := r.members.Create(ctx, roster.MemberDraft{
		TenantID:   tenantID,
		ExternalID: candidate.ExternalID,
		Name:       candidate.Name,
		Email:      candidate.Email,
		Role:       roster.DefaultMemberRole,
		TeamID:     teamID,
		IsOnCall:   false,
		Phone:      candidate.Phone,
		Skills:     []string{},
	})
	if err != nil {
		return r.skipStorageFailure(logger, candidate.ExternalID, err)
	}
	byExternalID[candidate.ExternalID] = member.ID
	return OutcomeCreated, nil
}

func (r *Reconciler) skipStorageFailure(logger *zap.Logger, externalID string, err error) (Outcome, *SkipReason) {
	reason := string(database.Classify(err))
	logger.Warn("directory candidate skipped",
		zap.String("external_id", externalID),
		zap.String("reason", reason),
		zap.Error(err))
	return OutcomeSkipped, &SkipReason{ExternalID: externalID, Reason: reason, Detail: err.Error()}
}

func (r *Reconciler) transition(summary *Summary, logger *zap.Logger, next State) {
	logger.Debug("directory sync state change",
		zap.String("from", string(summary.State)),
		zap.String("to", string(next)))
	summary.State = next
}

func (r *Reconciler) fail(summary *Summary, logger *zap.Logger, err error) (Summary, error) {
	r.transition(summary, logger, StateFailed)
	summary.Err = err
	summary.FinishedAt = r.clock().UTC()
	logger.Error("directory sync failed", zap.Error(err))
	return *summary, err
}
