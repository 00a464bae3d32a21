package roster

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStores(t *testing.T) (*Stores, *gorm.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "roster.db") + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	stores, err := NewStores(StoreConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) },
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build stores: %v", err)
	}
	return stores, db
}

func mustTenant(t *testing.T, stores *Stores, slug string) Tenant {
	t.Helper()
	tenant, err := stores.Tenants.Create(context.Background(), TenantDraft{
		Name:       slug,
		Domain:     slug + ".example.com",
		CustomerID: "cust-" + slug,
	})
	if err != nil {
		t.Fatalf("failed to create tenant %s: %v", slug, err)
	}
	return tenant
}

func TestNewStoresRequiresDependencies(t *testing.T) {
	if _, err := NewStores(StoreConfig{IDProvider: NewUUIDProvider()}); err == nil {
		t.Fatalf("expected missing database error")
	}
	_, db := newTestStores(t)
	if _, err := NewStores(StoreConfig{Database: db}); err == nil {
		t.Fatalf("expected missing id provider error")
	}
}

func TestTenantCreateProvisionsDefaultTeam(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")

	if len(tenant.APIKey) != 64 {
		t.Fatalf("expected 64 hex characters of api key, got %q", tenant.APIKey)
	}
	team, err := stores.Teams.FirstByTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team == nil || team.Name != DefaultTeamName {
		t.Fatalf("expected default team, got %#v", team)
	}

	_, err = stores.Tenants.Create(ctx, TenantDraft{Name: "Other", Domain: "other.example.com", CustomerID: "cust-acme"})
	if !errors.Is(err, ErrDuplicateTenant) {
		t.Fatalf("expected duplicate tenant for reused customer id, got %v", err)
	}
	_, err = stores.Tenants.Create(ctx, TenantDraft{Name: "Blank"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	found, err := stores.Tenants.FindByDomain(ctx, " acme.example.com ")
	if err != nil || found.ID != tenant.ID {
		t.Fatalf("expected to find tenant by domain, got %#v (err %v)", found, err)
	}
	if _, err := stores.Tenants.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFirstByTenantReturnsNilWithoutTeams(t *testing.T) {
	stores, _ := newTestStores(t)
	team, err := stores.Teams.FirstByTenant(context.Background(), "no-such-tenant")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team != nil {
		t.Fatalf("expected nil team, got %#v", team)
	}
}

func TestSyncConfigCreateEnforcesOnePerProvider(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")

	config, err := stores.SyncConfigs.Create(ctx, tenant.ID, " LDAP ", json.RawMessage(`{"url":"ldap://dir"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Provider != ProviderLDAP {
		t.Fatalf("expected normalized provider, got %q", config.Provider)
	}

	_, err = stores.SyncConfigs.Create(ctx, tenant.ID, ProviderLDAP, json.RawMessage(`{}`))
	if !errors.Is(err, ErrDuplicateSyncConfig) {
		t.Fatalf("expected duplicate config, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "roster.sync_configs.create.duplicate_config" {
		t.Fatalf("unexpected service error code: %v", err)
	}

	if _, err := stores.SyncConfigs.Create(ctx, tenant.ID, "okta", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected unknown provider, got %v", err)
	}
	if _, err := stores.SyncConfigs.Create(ctx, tenant.ID, ProviderGoogle, json.RawMessage(`["not","object"]`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for array config, got %v", err)
	}

	other := mustTenant(t, stores, "beta")
	if _, err := stores.SyncConfigs.Create(ctx, other.ID, ProviderLDAP, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("expected another tenant to reuse the provider, got %v", err)
	}
	all, err := stores.SyncConfigs.ListAll(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two configs overall, got %d (err %v)", len(all), err)
	}
}

func TestSyncConfigUpdateTouchAndDelete(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")
	config, err := stores.SyncConfigs.Create(ctx, tenant.ID, ProviderGoogle, json.RawMessage(`{"domain":"acme.example.com"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := stores.SyncConfigs.UpdateConfig(ctx, config.ID, json.RawMessage(`{"domain":"acme.io"}`))
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	var document map[string]string
	if err := json.Unmarshal(updated.Config, &document); err != nil || document["domain"] != "acme.io" {
		t.Fatalf("unexpected config after update: %s", updated.Config)
	}

	syncedAt := time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC)
	if err := stores.SyncConfigs.TouchLastSynced(ctx, config.ID, syncedAt); err != nil {
		t.Fatalf("unexpected touch error: %v", err)
	}
	reloaded, err := stores.SyncConfigs.Get(ctx, config.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if reloaded.LastSyncedAt == nil || !reloaded.LastSyncedAt.Equal(syncedAt) {
		t.Fatalf("unexpected last synced at: %v", reloaded.LastSyncedAt)
	}

	if err := stores.SyncConfigs.Delete(ctx, config.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := stores.SyncConfigs.Delete(ctx, config.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := stores.SyncConfigs.UpdateConfig(ctx, config.ID, json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestUpdateDirectoryFieldsLeavesLocalFieldsAlone(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")
	team, err := stores.Teams.FirstByTenant(ctx, tenant.ID)
	if err != nil || team == nil {
		t.Fatalf("expected default team, got %v", err)
	}

	member, err := stores.Members.Create(ctx, MemberDraft{
		TenantID:   tenant.ID,
		ExternalID: "ext-1",
		Name:       "Ada",
		Email:      "ada@acme.example.com",
		Role:       "Incident Commander",
		TeamID:     team.ID,
		IsOnCall:   true,
		Phone:      "+1 555 0100",
		Skills:     []string{"go"},
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	updated, err := stores.Members.UpdateDirectoryFields(ctx, member.ID, DirectoryFields{
		Name:  "Ada Lovelace",
		Email: "ada.lovelace@acme.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Name != "Ada Lovelace" || updated.Email != "ada.lovelace@acme.example.com" {
		t.Fatalf("expected directory fields to change, got %#v", updated)
	}
	if updated.Phone == nil || *updated.Phone != "+1 555 0100" {
		t.Fatalf("expected phone to be kept when none is supplied, got %v", updated.Phone)
	}
	if updated.Role != "Incident Commander" || !updated.IsOnCall || updated.TeamID != team.ID {
		t.Fatalf("expected locally-owned fields to be untouched, got %#v", updated)
	}
	if len(updated.Skills) != 1 || updated.Skills[0] != "go" {
		t.Fatalf("expected skills to be untouched, got %v", updated.Skills)
	}

	phone := "+1 555 0199"
	updated, err = stores.Members.UpdateDirectoryFields(ctx, member.ID, DirectoryFields{
		Name:  "Ada Lovelace",
		Email: "ada.lovelace@acme.example.com",
		Phone: &phone,
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Phone == nil || *updated.Phone != phone {
		t.Fatalf("expected phone overwrite, got %v", updated.Phone)
	}

	if _, err := stores.Members.UpdateDirectoryFields(ctx, "missing", DirectoryFields{Name: "x", Email: "x@y"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemberCreateDefaultsRole(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")
	team, _ := stores.Teams.FirstByTenant(ctx, tenant.ID)

	member, err := stores.Members.Create(ctx, MemberDraft{TenantID: tenant.ID, TeamID: team.ID, Name: "Lin", Email: "lin@acme.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.Role != DefaultMemberRole || member.IsOnCall || member.ExternalID != nil {
		t.Fatalf("unexpected defaults: %#v", member)
	}
	if _, err := stores.Members.Create(ctx, MemberDraft{TenantID: tenant.ID, TeamID: team.ID, Name: "No Email"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestBadgeCreateValidatesColor(t *testing.T) {
	stores, db := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")

	badge, err := stores.Badges.Create(ctx, tenant.ID, "Mentor", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if badge.Color != DefaultBadgeColor {
		t.Fatalf("expected default color, got %q", badge.Color)
	}
	if _, err := stores.Badges.Create(ctx, tenant.ID, "Short", "", "#abc"); err != nil {
		t.Fatalf("expected three-digit hex color to be accepted, got %v", err)
	}
	if _, err := stores.Badges.Create(ctx, tenant.ID, "Named", "", "red"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid color to be rejected, got %v", err)
	}

	team, _ := stores.Teams.FirstByTenant(ctx, tenant.ID)
	member, err := stores.Members.Create(ctx, MemberDraft{TenantID: tenant.ID, TeamID: team.ID, Name: "Ada", Email: "ada@acme.example.com"})
	if err != nil {
		t.Fatalf("unexpected member error: %v", err)
	}
	if err := stores.Badges.Assign(ctx, member.ID, badge.ID); err != nil {
		t.Fatalf("unexpected assign error: %v", err)
	}
	var assignments int64
	if err := db.Model(&MemberBadge{}).Where("member_id = ?", member.ID).Count(&assignments).Error; err != nil {
		t.Fatalf("failed to count assignments: %v", err)
	}
	if assignments != 1 {
		t.Fatalf("expected one assignment, got %d", assignments)
	}
}

func TestMemberEmailsAreStoredNormalized(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	tenant := mustTenant(t, stores, "acme")
	team, err := stores.Teams.FirstByTenant(ctx, tenant.ID)
	if err != nil || team == nil {
		t.Fatalf("expected default team, got %v", err)
	}

	member, err := stores.Members.Create(ctx, MemberDraft{
		TenantID: tenant.ID, TeamID: team.ID, Name: "Ada", Email: " Ada@Acme.Example.com ",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if member.Email != "ada@acme.example.com" {
		t.Fatalf("expected normalized email on create, got %q", member.Email)
	}

	if _, err := stores.Members.Create(ctx, MemberDraft{
		TenantID: tenant.ID, TeamID: team.ID, Name: "Ada Again", Email: "ADA@acme.example.com",
	}); err == nil {
		t.Fatalf("expected case-only duplicate to be rejected")
	}

	updated, err := stores.Members.UpdateDirectoryFields(ctx, member.ID, DirectoryFields{
		Name: "Ada", Email: "Ada.Lovelace@ACME.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Email != "ada.lovelace@acme.example.com" {
		t.Fatalf("expected normalized email on update, got %q", updated.Email)
	}
}
