package dirsync

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/directory"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	admin "google.golang.org/api/admin/directory/v1"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeSource struct {
	provider string
	records  []directory.RawRecord
	err      error
	calls    int
}

func (s *fakeSource) Provider() string {
	return s.provider
}

func (s *fakeSource) FetchAll(context.Context) ([]directory.RawRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func googleRecord(externalID, email, name, phone string) directory.RawRecord {
	user := &admin.User{Id: externalID, PrimaryEmail: email}
	if name != "" {
		user.Name = &admin.UserName{FullName: name}
	}
	if phone != "" {
		user.Phones = []interface{}{map[string]interface{}{"value": phone}}
	}
	return directory.RawRecord{Provider: directory.ProviderGoogle, Google: user}
}

type syncHarness struct {
	db     *gorm.DB
	stores *roster.Stores
	now    time.Time
}

func newSyncHarness(t *testing.T) *syncHarness {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "roster.db") + "?_pragma=foreign_keys(1)"
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	harness := &syncHarness{db: db, now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	stores, err := roster.NewStores(roster.StoreConfig{
		Database:   db,
		Clock:      func() time.Time { return harness.now },
		IDProvider: roster.NewUUIDProvider(),
	})
	require.NoError(t, err)
	harness.stores = stores
	return harness
}

func (h *syncHarness) reconciler(t *testing.T, logger *zap.Logger) *Reconciler {
	t.Helper()
	reconciler, err := NewReconciler(ReconcilerConfig{
		Members:     h.stores.Members,
		Teams:       h.stores.Teams,
		SyncConfigs: h.stores.SyncConfigs,
		Clock:       func() time.Time { return h.now },
		Logger:      logger,
	})
	require.NoError(t, err)
	return reconciler
}

// tenant provisions a tenant together with its default team.
func (h *syncHarness) tenant(t *testing.T, slug string) roster.Tenant {
	t.Helper()
	tenant, err := h.stores.Tenants.Create(context.Background(), roster.TenantDraft{
		Name:       slug,
		Domain:     slug + ".example.com",
		CustomerID: "cust-" + slug,
	})
	require.NoError(t, err)
	return tenant
}

// bareTenant inserts a tenant without any team.
func (h *syncHarness) bareTenant(t *testing.T, slug string) roster.Tenant {
	t.Helper()
	tenant := roster.Tenant{
		ID:         "tenant-" + slug,
		Name:       slug,
		Domain:     slug + ".example.com",
		CustomerID: "cust-" + slug,
		APIKey:     "key-" + slug,
	}
	require.NoError(t, h.db.Create(&tenant).Error)
	return tenant
}

func (h *syncHarness) team(t *testing.T, tenantID, name string, createdAt time.Time) roster.Team {
	t.Helper()
	team := roster.Team{ID: fmt.Sprintf("%s-%s", tenantID, name), TenantID: tenantID, Name: name, CreatedAt: createdAt}
	require.NoError(t, h.db.Create(&team).Error)
	return team
}

func (h *syncHarness) syncConfig(t *testing.T, tenantID, provider, fixture string) roster.SyncConfig {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"fixture": fixture})
	require.NoError(t, err)
	config, err := h.stores.SyncConfigs.Create(context.Background(), tenantID, provider, raw)
	require.NoError(t, err)
	return config
}

func (h *syncHarness) rawSyncConfig(t *testing.T, tenantID, provider string) roster.SyncConfig {
	t.Helper()
	config := roster.SyncConfig{
		ID:       "config-" + tenantID + "-" + provider,
		TenantID: tenantID,
		Provider: provider,
		Config:   datatypes.JSON(`{}`),
	}
	require.NoError(t, h.db.Create(&config).Error)
	return config
}

func (h *syncHarness) members(t *testing.T, tenantID string) []roster.Member {
	t.Helper()
	members, err := h.stores.Members.ListByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	return members
}

func (h *syncHarness) reloadConfig(t *testing.T, configID string) roster.SyncConfig {
	t.Helper()
	config, err := h.stores.SyncConfigs.Get(context.Background(), configID)
	require.NoError(t, err)
	return config
}

// fixtureSources resolves sources by the "fixture" key of the stored config.
type fixtureSources struct {
	sources map[string]*fakeSource
	calls   int
}

func (f *fixtureSources) factory() SourceFactory {
	return func(provider string, rawConfig []byte) (directory.Source, error) {
		f.calls++
		var document struct {
			Fixture string `json:"fixture"`
		}
		if err := json.Unmarshal(rawConfig, &document); err != nil {
			return nil, err
		}
		source, ok := f.sources[document.Fixture]
		if !ok {
			return nil, &directory.ConfigError{Provider: provider, Err: fmt.Errorf("no fixture %q", document.Fixture)}
		}
		return source, nil
	}
}
