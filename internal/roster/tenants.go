package roster

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreateTenant = "roster.tenants.create"
	opGetTenant    = "roster.tenants.get"
	opListTenants  = "roster.tenants.list"
)

// TenantStore persists tenants.
type TenantStore struct {
	base storeBase
}

// Create provisions a tenant with a fresh API key and its default team.
func (s *TenantStore) Create(ctx context.Context, draft TenantDraft) (Tenant, error) {
	if s == nil || s.base.db == nil {
		return Tenant{}, newServiceError(opCreateTenant, reasonMissingDB, errMissingDatabase)
	}
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Domain = strings.TrimSpace(draft.Domain)
	draft.CustomerID = strings.TrimSpace(draft.CustomerID)
	if draft.Name == "" || draft.Domain == "" || draft.CustomerID == "" {
		return Tenant{}, newServiceError(opCreateTenant, reasonInvalidInput, ErrInvalidInput)
	}

	tenantID, err := s.base.ids.NewID()
	if err != nil {
		return Tenant{}, newServiceError(opCreateTenant, reasonIDFailed, err)
	}
	apiKey, err := newAPIKey()
	if err != nil {
		return Tenant{}, newServiceError(opCreateTenant, "api_key_generation_failed", err)
	}
	tenant := Tenant{
		ID:         tenantID,
		Name:       draft.Name,
		Domain:     draft.Domain,
		CustomerID: draft.CustomerID,
		APIKey:     apiKey,
	}

	txErr := s.base.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Tenant{}).
			Where("domain = ? OR customer_id = ?", draft.Domain, draft.CustomerID).
			Count(&existing).Error; err != nil {
			return newServiceError(opCreateTenant, reasonQueryFailed, err)
		}
		if existing > 0 {
			return newServiceError(opCreateTenant, "duplicate_tenant", ErrDuplicateTenant)
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return newServiceError(opCreateTenant, reasonInsertFailed, err)
		}
		team, err := newTeam(s.base.ids, tenant.ID, DefaultTeamName, defaultTeamDescription)
		if err != nil {
			return newServiceError(opCreateTenant, reasonIDFailed, err)
		}
		if err := tx.Create(&team).Error; err != nil {
			return newServiceError(opCreateTenant, "default_team_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrDuplicateTenant) {
			logError(s.base.logger, opCreateTenant, reasonInsertFailed, txErr, zap.String("domain", draft.Domain))
		}
		return Tenant{}, txErr
	}
	return tenant, nil
}

// Get returns the tenant with the given id.
func (s *TenantStore) Get(ctx context.Context, tenantID string) (Tenant, error) {
	if s == nil || s.base.db == nil {
		return Tenant{}, newServiceError(opGetTenant, reasonMissingDB, errMissingDatabase)
	}
	var tenant Tenant
	err := s.base.db.WithContext(ctx).Where(queryID, tenantID).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tenant{}, newServiceError(opGetTenant, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		logError(s.base.logger, opGetTenant, reasonQueryFailed, err, zap.String("tenant_id", tenantID))
		return Tenant{}, newServiceError(opGetTenant, reasonQueryFailed, err)
	}
	return tenant, nil
}

// List returns all tenants ordered by name.
func (s *TenantStore) List(ctx context.Context) ([]Tenant, error) {
	if s == nil || s.base.db == nil {
		return nil, newServiceError(opListTenants, reasonMissingDB, errMissingDatabase)
	}
	var tenants []Tenant
	if err := s.base.db.WithContext(ctx).Order(orderNameAsc).Find(&tenants).Error; err != nil {
		logError(s.base.logger, opListTenants, reasonQueryFailed, err)
		return nil, newServiceError(opListTenants, reasonQueryFailed, err)
	}
	return tenants, nil
}

// FindByDomain returns the tenant registered for the domain.
func (s *TenantStore) FindByDomain(ctx context.Context, domain string) (Tenant, error) {
	const operation = "roster.tenants.find_by_domain"
	if s == nil || s.base.db == nil {
		return Tenant{}, newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	var tenant Tenant
	err := s.base.db.WithContext(ctx).Where("domain = ?", strings.TrimSpace(domain)).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tenant{}, newServiceError(operation, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		return Tenant{}, newServiceError(operation, reasonQueryFailed, err)
	}
	return tenant, nil
}
