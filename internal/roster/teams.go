package roster

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opFirstTeam = "roster.teams.first_by_tenant"

// TeamStore persists teams.
type TeamStore struct {
	base storeBase
}

// FirstByTenant returns the earliest created team of the tenant, or nil when
// the tenant has no team.
func (s *TeamStore) FirstByTenant(ctx context.Context, tenantID string) (*Team, error) {
	if s == nil || s.base.db == nil {
		return nil, newServiceError(opFirstTeam, reasonMissingDB, errMissingDatabase)
	}
	var team Team
	err := s.base.db.WithContext(ctx).
		Where(queryTenantID, tenantID).
		Order(orderCreatedAtAsc).
		Take(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logError(s.base.logger, opFirstTeam, reasonQueryFailed, err, zap.String("tenant_id", tenantID))
		return nil, newServiceError(opFirstTeam, reasonQueryFailed, err)
	}
	return &team, nil
}

// ListByTenant returns the tenant's teams ordered by name.
func (s *TeamStore) ListByTenant(ctx context.Context, tenantID string) ([]Team, error) {
	const operation = "roster.teams.list_by_tenant"
	if s == nil || s.base.db == nil {
		return nil, newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	var teams []Team
	if err := s.base.db.WithContext(ctx).
		Where(queryTenantID, tenantID).
		Order(orderNameAsc).
		Find(&teams).Error; err != nil {
		logError(s.base.logger, operation, reasonQueryFailed, err, zap.String("tenant_id", tenantID))
		return nil, newServiceError(operation, reasonQueryFailed, err)
	}
	return teams, nil
}

// Create inserts a team for the tenant.
func (s *TeamStore) Create(ctx context.Context, tenantID, name, description string) (Team, error) {
	const operation = "roster.teams.create"
	if s == nil || s.base.db == nil {
		return Team{}, newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	team, err := newTeam(s.base.ids, tenantID, name, description)
	if err != nil {
		return Team{}, newServiceError(operation, reasonIDFailed, err)
	}
	if err := s.base.db.WithContext(ctx).Create(&team).Error; err != nil {
		logError(s.base.logger, operation, reasonInsertFailed, err, zap.String("tenant_id", tenantID))
		return Team{}, newServiceError(operation, reasonInsertFailed, err)
	}
	return team, nil
}

func newTeam(ids IDProvider, tenantID, name, description string) (Team, error) {
	id, err := ids.NewID()
	if err != nil {
		return Team{}, err
	}
	return Team{ID: id, TenantID: tenantID, Name: name, Description: description}, nil
}
