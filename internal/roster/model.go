package roster

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// ProviderLDAP tags a sync config backed by an LDAP directory.
	ProviderLDAP = "ldap"
	// ProviderGoogle tags a sync config backed by a Google Workspace directory.
	ProviderGoogle = "google"

	// DefaultMemberRole is assigned to members created by directory synchronization.
	DefaultMemberRole = "Member"
	// DefaultTeamName names the team provisioned alongside every tenant.
	DefaultTeamName        = "Default Team"
	defaultTeamDescription = "Default team for new members"
	// DefaultBadgeColor is applied when a badge is created without a color.
	DefaultBadgeColor = "#000000"
)

// Tenant is the isolation boundary owning teams, members, badges and sync configs.
type Tenant struct {
	ID         string    `gorm:"column:id;primaryKey;size:64;not null"`
	Name       string    `gorm:"column:name;size:190;not null"`
	Domain     string    `gorm:"column:domain;size:255;not null;uniqueIndex:idx_tenants_domain"`
	CustomerID string    `gorm:"column:customer_id;size:190;not null;uniqueIndex:idx_tenants_customer"`
	APIKey     string    `gorm:"column:api_key;size:128;not null;uniqueIndex:idx_tenants_api_key"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Tenant) TableName() string {
	return "tenants"
}

// Team groups members inside a tenant.
type Team struct {
	ID          string    `gorm:"column:id;primaryKey;size:64;not null"`
	TenantID    string    `gorm:"column:tenant_id;size:64;not null;index:idx_teams_tenant_created,priority:1"`
	Tenant      *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	Name        string    `gorm:"column:name;size:100;not null"`
	Description string    `gorm:"column:description;size:500;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index:idx_teams_tenant_created,priority:2"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Team) TableName() string {
	return "teams"
}

// Member is a person known to a tenant. ExternalID is set only for
// directory-sourced members and is the reconciliation join key.
type Member struct {
	ID         string                      `gorm:"column:id;primaryKey;size:64;not null"`
	TenantID   string                      `gorm:"column:tenant_id;size:64;not null;uniqueIndex:idx_members_tenant_email,priority:1;uniqueIndex:idx_members_tenant_external,priority:1"`
	Tenant     *Tenant                     `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	ExternalID *string                     `gorm:"column:external_id;size:190;uniqueIndex:idx_members_tenant_external,priority:2"`
	Name       string                      `gorm:"column:name;size:190;not null"`
	Email      string                      `gorm:"column:email;size:320;not null;uniqueIndex:idx_members_tenant_email,priority:2"`
	Role       string                      `gorm:"column:role;size:100;not null"`
	TeamID     string                      `gorm:"column:team_id;size:64;not null;index"`
	Team       *Team                       `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	IsOnCall   bool                        `gorm:"column:is_on_call;not null;default:false"`
	Phone      *string                     `gorm:"column:phone;size:64"`
	Skills     datatypes.JSONSlice[string] `gorm:"column:skills"`
	JoinedAt   time.Time                   `gorm:"column:joined_at;autoCreateTime"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Member) TableName() string {
	return "members"
}

// Badge is an award that can be assigned to members.
type Badge struct {
	ID          string    `gorm:"column:id;primaryKey;size:64;not null"`
	TenantID    string    `gorm:"column:tenant_id;size:64;not null;uniqueIndex:idx_badges_tenant_name,priority:1"`
	Tenant      *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	Name        string    `gorm:"column:name;size:50;not null;uniqueIndex:idx_badges_tenant_name,priority:2"`
	Description string    `gorm:"column:description;size:200;not null;default:''"`
	Color       string    `gorm:"column:color;size:7;not null;default:'#000000'"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Badge) TableName() string {
	return "badges"
}

// MemberBadge records a badge awarded to a member.
type MemberBadge struct {
	MemberID  string    `gorm:"column:member_id;primaryKey;size:64;not null"`
	Member    *Member   `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE"`
	BadgeID   string    `gorm:"column:badge_id;primaryKey;size:64;not null"`
	Badge     *Badge    `gorm:"foreignKey:BadgeID;constraint:OnDelete:CASCADE"`
	AwardedAt time.Time `gorm:"column:awarded_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (MemberBadge) TableName() string {
	return "member_badges"
}

// SyncConfig binds a tenant to one directory provider. Config holds the
// provider-specific settings as an opaque JSON document.
type SyncConfig struct {
	ID           string         `gorm:"column:id;primaryKey;size:64;not null"`
	TenantID     string         `gorm:"column:tenant_id;size:64;not null;uniqueIndex:idx_sync_configs_tenant_provider,priority:1"`
	Tenant       *Tenant        `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	Provider     string         `gorm:"column:provider;size:32;not null;uniqueIndex:idx_sync_configs_tenant_provider,priority:2"`
	Config       datatypes.JSON `gorm:"column:config;not null"`
	LastSyncedAt *time.Time     `gorm:"column:last_synced_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (SyncConfig) TableName() string {
	return "sync_configs"
}

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{&Tenant{}, &Team{}, &Member{}, &Badge{}, &MemberBadge{}, &SyncConfig{}}
}

// MemberDraft carries the fields required to create a member.
type MemberDraft struct {
	TenantID   string
	ExternalID string
	Name       string
	Email      string
	Role       string
	TeamID     string
	IsOnCall   bool
	Phone      string
	Skills     []string
}

// DirectoryFields holds the member attributes a directory is allowed to overwrite.
// A nil Phone leaves the stored phone untouched.
type DirectoryFields struct {
	Name  string
	Email string
	Phone *string
}

// TenantDraft carries the fields required to provision a tenant.
type TenantDraft struct {
	Name       string
	Domain     string
	CustomerID string
}

// IsKnownProvider reports whether the provider tag has a directory adapter.
func IsKnownProvider(provider string) bool {
	switch provider {
	case ProviderLDAP, ProviderGoogle:
		return true
	default:
		return false
	}
}
