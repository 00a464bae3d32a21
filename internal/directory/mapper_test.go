package directory

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	admin "google.golang.org/api/admin/directory/v1"
)

func ldapEntry(attributes map[string]string) *ldap.Entry {
	entry := &ldap.Entry{DN: "cn=test,dc=example,dc=com"}
	for name, value := range attributes {
		entry.Attributes = append(entry.Attributes, &ldap.EntryAttribute{
			Name:       name,
			Values:     []string{value},
			ByteValues: [][]byte{[]byte(value)},
		})
	}
	return entry
}

func TestMapLDAPEntryPrefersPrimaryAttributes(t *testing.T) {
	candidate, err := MapLDAPEntry(ldapEntry(map[string]string{
		"entryUUID":       "uuid-1",
		"uid":             "jdoe",
		"mail":            "  jdoe@example.com ",
		"email":           "other@example.com",
		"displayName":     "Jane Doe",
		"givenName":       "Janet",
		"sn":              "Doherty",
		"telephoneNumber": "+1 555 0100",
		"mobile":          "+1 555 0199",
	}))
	require.NoError(t, err)
	assert.Equal(t, Candidate{
		ExternalID: "uuid-1",
		Name:       "Jane Doe",
		Email:      "jdoe@example.com",
		Phone:      "+1 555 0100",
	}, candidate)
}

func TestMapLDAPEntryFallsBack(t *testing.T) {
	candidate, err := MapLDAPEntry(ldapEntry(map[string]string{
		"uid":       "jdoe",
		"email":     "jdoe@example.com",
		"givenName": "Jane",
		"sn":        "Doe",
		"mobile":    "+1 555 0199",
	}))
	require.NoError(t, err)
	assert.Equal(t, "jdoe", candidate.ExternalID)
	assert.Equal(t, "jdoe@example.com", candidate.Email)
	assert.Equal(t, "Jane Doe", candidate.Name)
	assert.Equal(t, "+1 555 0199", candidate.Phone)
}

func TestMapLDAPEntryRendersObjectGUID(t *testing.T) {
	raw := []byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05, 0x08, 0x07, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	entry := ldapEntry(map[string]string{
		"uid":         "jdoe",
		"mail":        "jdoe@example.com",
		"displayName": "Jane Doe",
	})
	entry.Attributes = append(entry.Attributes, &ldap.EntryAttribute{
		Name:       "objectGUID",
		Values:     []string{string(raw)},
		ByteValues: [][]byte{raw},
	})

	candidate, err := MapLDAPEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", candidate.ExternalID)
}

func TestMapLDAPEntryRejectsIncompleteEntries(t *testing.T) {
	cases := map[string]map[string]string{
		"missing id":    {"mail": "a@example.com", "displayName": "A"},
		"missing email": {"uid": "a", "displayName": "A"},
		"missing name":  {"uid": "a", "mail": "a@example.com"},
		"blank name":    {"uid": "a", "mail": "a@example.com", "displayName": "   "},
	}
	for name, attributes := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MapLDAPEntry(ldapEntry(attributes))
			require.ErrorIs(t, err, ErrIncompleteRecord)
		})
	}
}

func TestMapGoogleUser(t *testing.T) {
	candidate, err := MapGoogleUser(&admin.User{
		Id:           "g-1",
		PrimaryEmail: "ana@example.com",
		Name:         &admin.UserName{GivenName: "Ana", FamilyName: "Lima"},
		Phones: []interface{}{
			map[string]interface{}{"value": " ", "type": "home"},
			map[string]interface{}{"value": "+55 11 5555", "type": "work"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Candidate{
		ExternalID: "g-1",
		Name:       "Ana Lima",
		Email:      "ana@example.com",
		Phone:      "+55 11 5555",
	}, candidate)
}

func TestMapGoogleUserPrefersFullName(t *testing.T) {
	candidate, err := MapGoogleUser(&admin.User{
		Id:           "g-2",
		PrimaryEmail: "bo@example.com",
		Name:         &admin.UserName{FullName: "Bo Ek", GivenName: "Bo", FamilyName: "Ekström"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bo Ek", candidate.Name)
	assert.Empty(t, candidate.Phone)
}

func TestMapGoogleUserRejectsMissingName(t *testing.T) {
	_, err := MapGoogleUser(&admin.User{Id: "g-3", PrimaryEmail: "x@example.com"})
	require.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestMapRecordDispatchesOnPayload(t *testing.T) {
	_, err := MapRecord(RawRecord{Provider: ProviderLDAP})
	require.ErrorIs(t, err, ErrIncompleteRecord)

	candidate, err := MapRecord(RawRecord{
		Provider: ProviderGoogle,
		Google:   &admin.User{Id: "g-4", PrimaryEmail: "c@example.com", Name: &admin.UserName{FullName: "C"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "g-4", candidate.ExternalID)
}
