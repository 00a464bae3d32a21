package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document accepted by the seed command.
type Fixture struct {
	Tenants []TenantFixture `yaml:"tenants"`
}

// TenantFixture describes one tenant and everything provisioned under it.
type TenantFixture struct {
	Name        string              `yaml:"name"`
	Domain      string              `yaml:"domain"`
	CustomerID  string              `yaml:"customerId"`
	Teams       []TeamFixture       `yaml:"teams"`
	Badges      []BadgeFixture      `yaml:"badges"`
	Members     []MemberFixture     `yaml:"members"`
	SyncConfigs []SyncConfigFixture `yaml:"syncConfigs"`
}

type TeamFixture struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type BadgeFixture struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
}

// MemberFixture references its team and badges by name. An empty team places
// the member in the tenant's first team.
type MemberFixture struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Role       string   `yaml:"role"`
	Team       string   `yaml:"team"`
	IsOnCall   bool     `yaml:"isOnCall"`
	Phone      string   `yaml:"phone"`
	ExternalID string   `yaml:"externalId"`
	Skills     []string `yaml:"skills"`
	Badges     []string `yaml:"badges"`
}

type SyncConfigFixture struct {
	Provider string                 `yaml:"provider"`
	Config   map[string]interface{} `yaml:"config"`
}

// Report counts what Apply provisioned.
type Report struct {
	TenantsCreated int
	TenantsSkipped int
	Teams          int
	Badges         int
	Members        int
	SyncConfigs    int
}

// Stores groups the roster stores the seeder writes through.
type Stores struct {
	Tenants     *roster.TenantStore
	Teams       *roster.TeamStore
	Members     *roster.MemberStore
	Badges      *roster.BadgeStore
	SyncConfigs *roster.SyncConfigStore
}

// LoadFile parses a fixture file.
func LoadFile(path string) (Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return Parse(content)
}

// Parse decodes a fixture document and rejects unknown keys.
func Parse(content []byte) (Fixture, error) {
	var fixture Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return Fixture{}, fmt.Errorf("decode seed fixture: %w", err)
	}
	for index, tenant := range fixture.Tenants {
		if strings.TrimSpace(tenant.Domain) == "" {
			return Fixture{}, fmt.Errorf("tenant %d: domain is required", index)
		}
	}
	return fixture, nil
}

// Apply provisions every tenant of the fixture. Tenants whose domain already
// exists are left untouched, so re-running a fixture is a no-op.
func Apply(ctx context.Context, stores Stores, fixture Fixture, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var report Report
	for _, tenantFixture := range fixture.Tenants {
		_, err := stores.Tenants.FindByDomain(ctx, tenantFixture.Domain)
		if err == nil {
			report.TenantsSkipped++
			logger.Info("seed tenant already exists", zap.String("domain", tenantFixture.Domain))
			continue
		}
		if !errors.Is(err, roster.ErrNotFound) {
			return report, err
		}
		if err := applyTenant(ctx, stores, tenantFixture, &report); err != nil {
			return report, fmt.Errorf("seed tenant %s: %w", tenantFixture.Domain, err)
		}
		report.TenantsCreated++
		logger.Info("seed tenant provisioned", zap.String("domain", tenantFixture.Domain))
	}
	return report, nil
}

func applyTenant(ctx context.Context, stores Stores, fixture TenantFixture, report *Report) error {
	tenant, err := stores.Tenants.Create(ctx, roster.TenantDraft{
		Name:       fixture.Name,
		Domain:     fixture.Domain,
		CustomerID: fixture.CustomerID,
	})
	if err != nil {
		return err
	}

	teams, err := stores.Teams.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return err
	}
	teamIDs := make(map[string]string, len(teams)+len(fixture.Teams))
	for _, team := range teams {
		teamIDs[team.Name] = team.ID
	}
	for _, teamFixture := range fixture.Teams {
		if _, exists := teamIDs[teamFixture.Name]; exists {
			continue
		}
		team, err := stores.Teams.Create(ctx, tenant.ID, teamFixture.Name, teamFixture.Description)
		if err != nil {
			return fmt.Errorf("team %q: %w", teamFixture.Name, err)
		}
		teamIDs[team.Name] = team.ID
		report.Teams++
	}
	firstTeam, err := stores.Teams.FirstByTenant(ctx, tenant.ID)
	if err != nil {
		return err
	}

	badgeIDs := make(map[string]string, len(fixture.Badges))
	for _, badgeFixture := range fixture.Badges {
		badge, err := stores.Badges.Create(ctx, tenant.ID, badgeFixture.Name, badgeFixture.Description, badgeFixture.Color)
		if err != nil {
			return fmt.Errorf("badge %q: %w", badgeFixture.Name, err)
		}
		badgeIDs[badge.Name] = badge.ID
		report.Badges++
	}

	for _, memberFixture := range fixture.Members {
		teamID := teamIDs[memberFixture.Team]
		if memberFixture.Team == "" && firstTeam != nil {
			teamID = firstTeam.ID
		}
		if teamID == "" {
			return fmt.Errorf("member %q references unknown team %q", memberFixture.Email, memberFixture.Team)
		}
		member, err := stores.Members.Create(ctx, roster.MemberDraft{
			TenantID:   tenant.ID,
			ExternalID: memberFixture.ExternalID,
			Name:       memberFixture.Name,
			Email:      memberFixture.Email,
			Role:       memberFixture.Role,
			TeamID:     teamID,
			IsOnCall:   memberFixture.IsOnCall,
			Phone:      memberFixture.Phone,
			Skills:     memberFixture.Skills,
		})
		if err != nil {
			return fmt.Errorf("member %q: %w", memberFixture.Email, err)
		}
		report.Members++
		for _, badgeName := range memberFixture.Badges {
			badgeID, ok := badgeIDs[badgeName]
			if !ok {
				return fmt.Errorf("member %q references unknown badge %q", memberFixture.Email, badgeName)
			}
			if err := stores.Badges.Assign(ctx, member.ID, badgeID); err != nil {
				return err
			}
		}
	}

	for _, configFixture := range fixture.SyncConfigs {
		document := configFixture.Config
		if document == nil {
			document = map[string]interface{}{}
		}
		encoded, err := json.Marshal(document)
		if err != nil {
			return fmt.Errorf("sync config %q: %w", configFixture.Provider, err)
		}
		if _, err := stores.SyncConfigs.Create(ctx, tenant.ID, configFixture.Provider, encoded); err != nil {
			return fmt.Errorf("sync config %q: %w", configFixture.Provider, err)
		}
		report.SyncConfigs++
	}
	return nil
}
