package seed

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const acmeFixture = `
tenants:
  - name: Acme
    domain: acme.example.com
    customerId: C0001
    teams:
      - name: Platform
        description: Runs the clusters
    badges:
      - name: Mentor
        color: "#FFAA00"
    members:
      - name: Ada Lovelace
        email: ada@acme.example.com
        team: Platform
        isOnCall: true
        skills: [go, postgres]
        badges: [Mentor]
      - name: Grace Hopper
        email: grace@acme.example.com
        role: Lead
    syncConfigs:
      - provider: google
        config:
          domain: acme.example.com
          credentials:
            client_email: sync@acme.iam.example.com
`

func openStores(t *testing.T) *roster.Stores {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "seed.db") + "?_pragma=foreign_keys(1)"
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	stores, err := roster.NewStores(roster.StoreConfig{Database: db, IDProvider: roster.NewUUIDProvider()})
	require.NoError(t, err)
	return stores
}

func seedStores(stores *roster.Stores) Stores {
	return Stores{
		Tenants:     stores.Tenants,
		Teams:       stores.Teams,
		Members:     stores.Members,
		Badges:      stores.Badges,
		SyncConfigs: stores.SyncConfigs,
	}
}

func TestApplyProvisionsFixtureOnce(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	fixture, err := Parse([]byte(acmeFixture))
	require.NoError(t, err)

	report, err := Apply(ctx, seedStores(stores), fixture, nil)
	require.NoError(t, err)
	assert.Equal(t, Report{TenantsCreated: 1, Teams: 1, Badges: 1, Members: 2, SyncConfigs: 1}, report)

	tenant, err := stores.Tenants.FindByDomain(ctx, "acme.example.com")
	require.NoError(t, err)
	teams, err := stores.Teams.ListByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	defaultTeam, err := stores.Teams.FirstByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, defaultTeam)
	assert.Equal(t, roster.DefaultTeamName, defaultTeam.Name)

	members, err := stores.Members.ListByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	byEmail := map[string]roster.Member{}
	for _, member := range members {
		byEmail[member.Email] = member
	}
	assert.Equal(t, defaultTeam.ID, byEmail["grace@acme.example.com"].TeamID)
	assert.Equal(t, "Lead", byEmail["grace@acme.example.com"].Role)
	assert.NotEqual(t, defaultTeam.ID, byEmail["ada@acme.example.com"].TeamID)
	assert.True(t, byEmail["ada@acme.example.com"].IsOnCall)

	configs, err := stores.SyncConfigs.ListByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	var document map[string]interface{}
	require.NoError(t, json.Unmarshal(configs[0].Config, &document))
	assert.Equal(t, "acme.example.com", document["domain"])

	report, err = Apply(ctx, seedStores(stores), fixture, nil)
	require.NoError(t, err)
	assert.Equal(t, Report{TenantsSkipped: 1}, report)
}

func TestApplyRejectsUnknownReferences(t *testing.T) {
	stores := openStores(t)
	fixture := Fixture{Tenants: []TenantFixture{{
		Name:       "Beta",
		Domain:     "beta.example.com",
		CustomerID: "C0002",
		Members:    []MemberFixture{{Name: "Lin", Email: "lin@beta.example.com", Team: "Ghost"}},
	}}}

	_, err := Apply(context.Background(), seedStores(stores), fixture, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown team "Ghost"`)
}

func TestParseRejectsUnknownKeysAndMissingDomain(t *testing.T) {
	_, err := Parse([]byte("tenants:\n  - name: Acme\n    domian: acme.example.com\n"))
	require.Error(t, err)

	_, err = Parse([]byte("tenants:\n  - name: Acme\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is required")
}
