package roster

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	fieldTenantID      = "tenant_id"
	queryTenantID      = fieldTenantID + " = ?"
	queryID            = "id = ?"
	orderCreatedAtAsc  = "created_at ASC, id ASC"
	orderNameAsc       = "name ASC"
	reasonMissingDB    = "missing_database"
	reasonQueryFailed  = "query_failed"
	reasonInsertFailed = "insert_failed"
	reasonUpdateFailed = "update_failed"
	reasonDeleteFailed = "delete_failed"
	reasonIDFailed     = "id_generation_failed"
	reasonNotFound     = "not_found"
	reasonInvalidInput = "invalid_input"
)

// StoreConfig describes the dependencies shared by the roster stores.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Stores bundles the per-entity stores over one database handle.
type Stores struct {
	Tenants     *TenantStore
	Teams       *TeamStore
	Members     *MemberStore
	Badges      *BadgeStore
	SyncConfigs *SyncConfigStore
}

type storeBase struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    IDProvider
	logger *zap.Logger
}

// NewStores validates the configuration and constructs every store.
func NewStores(cfg StoreConfig) (*Stores, error) {
	if cfg.Database == nil {
		return nil, newServiceError("roster.stores.new", reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError("roster.stores.new", "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	base := storeBase{db: cfg.Database, clock: clock, ids: cfg.IDProvider, logger: logger}
	return &Stores{
		Tenants:     &TenantStore{base: base},
		Teams:       &TeamStore{base: base},
		Members:     &MemberStore{base: base},
		Badges:      &BadgeStore{base: base},
		SyncConfigs: &SyncConfigStore{base: base},
	}, nil
}
