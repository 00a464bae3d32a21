package roster

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opListSyncConfigs   = "roster.sync_configs.list_by_tenant"
	opListAllConfigs    = "roster.sync_configs.list_all"
	opGetSyncConfig     = "roster.sync_configs.get"
	opCreateSyncConfig  = "roster.sync_configs.create"
	opUpdateSyncConfig  = "roster.sync_configs.update_config"
	opDeleteSyncConfig  = "roster.sync_configs.delete"
	opTouchLastSynced   = "roster.sync_configs.touch_last_synced"
	queryTenantProvider = fieldTenantID + " = ? AND provider = ?"
)

// SyncConfigStore persists directory synchronization configs.
type SyncConfigStore struct {
	base storeBase
}

// ListByTenant returns the tenant's sync configs ordered by creation.
func (s *SyncConfigStore) ListByTenant(ctx context.Context, tenantID string) ([]SyncConfig, error) {
	if s == nil || s.base.db == nil {
		return nil, newServiceError(opListSyncConfigs, reasonMissingDB, errMissingDatabase)
	}
	var configs []SyncConfig
	if err := s.base.db.WithContext(ctx).
		Where(queryTenantID, tenantID).
		Order(orderCreatedAtAsc).
		Find(&configs).Error; err != nil {
		logError(s.base.logger, opListSyncConfigs, reasonQueryFailed, err, zap.String("tenant_id", tenantID))
		return nil, newServiceError(opListSyncConfigs, reasonQueryFailed, err)
	}
	return configs, nil
}

// ListAll returns every sync config across all tenants.
func (s *SyncConfigStore) ListAll(ctx context.Context) ([]SyncConfig, error) {
	if s == nil || s.base.db == nil {
		return nil, newServiceError(opListAllConfigs, reasonMissingDB, errMissingDatabase)
	}
	var configs []SyncConfig
	if err := s.base.db.WithContext(ctx).
		Order("tenant_id ASC, " + orderCreatedAtAsc).
		Find(&configs).Error; err != nil {
		logError(s.base.logger, opListAllConfigs, reasonQueryFailed, err)
		return nil, newServiceError(opListAllConfigs, reasonQueryFailed, err)
	}
	return configs, nil
}

// Get returns a sync config by id.
func (s *SyncConfigStore) Get(ctx context.Context, configID string) (SyncConfig, error) {
	if s == nil || s.base.db == nil {
		return SyncConfig{}, newServiceError(opGetSyncConfig, reasonMissingDB, errMissingDatabase)
	}
	var config SyncConfig
	err := s.base.db.WithContext(ctx).Where(queryID, configID).Take(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SyncConfig{}, newServiceError(opGetSyncConfig, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		logError(s.base.logger, opGetSyncConfig, reasonQueryFailed, err, zap.String("sync_config_id", configID))
		return SyncConfig{}, newServiceError(opGetSyncConfig, reasonQueryFailed, err)
	}
	return config, nil
}

// Create stores a config for the tenant. At most one config may exist per provider.
func (s *SyncConfigStore) Create(ctx context.Context, tenantID, provider string, config json.RawMessage) (SyncConfig, error) {
	if s == nil || s.base.db == nil {
		return SyncConfig{}, newServiceError(opCreateSyncConfig, reasonMissingDB, errMissingDatabase)
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !IsKnownProvider(provider) {
		return SyncConfig{}, newServiceError(opCreateSyncConfig, "unknown_provider", ErrUnknownProvider)
	}
	if !isJSONObject(config) {
		return SyncConfig{}, newServiceError(opCreateSyncConfig, reasonInvalidInput, ErrInvalidInput)
	}
	id, err := s.base.ids.NewID()
	if err != nil {
		return SyncConfig{}, newServiceError(opCreateSyncConfig, reasonIDFailed, err)
	}
	record := SyncConfig{
		ID:       id,
		TenantID: tenantID,
		Provider: provider,
		Config:   datatypes.JSON(config),
	}

	txErr := s.base.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&SyncConfig{}).Where(queryTenantProvider, tenantID, provider).Count(&existing).Error; err != nil {
			return newServiceError(opCreateSyncConfig, reasonQueryFailed, err)
		}
		if existing > 0 {
			return newServiceError(opCreateSyncConfig, "duplicate_config", ErrDuplicateSyncConfig)
		}
		if err := tx.Create(&record).Error; err != nil {
			return newServiceError(opCreateSyncConfig, reasonInsertFailed, err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrDuplicateSyncConfig) {
			logError(s.base.logger, opCreateSyncConfig, reasonInsertFailed, txErr,
				zap.String("tenant_id", tenantID),
				zap.String("provider", provider))
		}
		return SyncConfig{}, txErr
	}
	return record, nil
}

// UpdateConfig replaces the provider configuration document.
func (s *SyncConfigStore) UpdateConfig(ctx context.Context, configID string, config json.RawMessage) (SyncConfig, error) {
	if s == nil || s.base.db == nil {
		return SyncConfig{}, newServiceError(opUpdateSyncConfig, reasonMissingDB, errMissingDatabase)
	}
	if !isJSONObject(config) {
		return SyncConfig{}, newServiceError(opUpdateSyncConfig, reasonInvalidInput, ErrInvalidInput)
	}
	result := s.base.db.WithContext(ctx).
		Model(&SyncConfig{}).
		Where(queryID, configID).
		Updates(map[string]interface{}{
			"config":     datatypes.JSON(config),
			"updated_at": s.base.clock().UTC(),
		})
	if result.Error != nil {
		logError(s.base.logger, opUpdateSyncConfig, reasonUpdateFailed, result.Error, zap.String("sync_config_id", configID))
		return SyncConfig{}, newServiceError(opUpdateSyncConfig, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return SyncConfig{}, newServiceError(opUpdateSyncConfig, reasonNotFound, ErrNotFound)
	}
	return s.Get(ctx, configID)
}

// Delete removes a sync config.
func (s *SyncConfigStore) Delete(ctx context.Context, configID string) error {
	if s == nil || s.base.db == nil {
		return newServiceError(opDeleteSyncConfig, reasonMissingDB, errMissingDatabase)
	}
	result := s.base.db.WithContext(ctx).Where(queryID, configID).Delete(&SyncConfig{})
	if result.Error != nil {
		logError(s.base.logger, opDeleteSyncConfig, reasonDeleteFailed, result.Error, zap.String("sync_config_id", configID))
		return newServiceError(opDeleteSyncConfig, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteSyncConfig, reasonNotFound, ErrNotFound)
	}
	return nil
}

// TouchLastSynced records the completion time of a successful run.
func (s *SyncConfigStore) TouchLastSynced(ctx context.Context, configID string, syncedAt time.Time) error {
	if s == nil || s.base.db == nil {
		return newServiceError(opTouchLastSynced, reasonMissingDB, errMissingDatabase)
	}
	result := s.base.db.WithContext(ctx).
		Model(&SyncConfig{}).
		Where(queryID, configID).
		Update("last_synced_at", syncedAt.UTC())
	if result.Error != nil {
		logError(s.base.logger, opTouchLastSynced, reasonUpdateFailed, result.Error, zap.String("sync_config_id", configID))
		return newServiceError(opTouchLastSynced, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opTouchLastSynced, reasonNotFound, ErrNotFound)
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	var object map[string]interface{}
	if err := json.Unmarshal(raw, &object); err != nil {
		return false
	}
	return object != nil
}
