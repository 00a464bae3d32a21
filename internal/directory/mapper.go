package directory

import (
	"encoding/json"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	admin "google.golang.org/api/admin/directory/v1"
)

// MapRecord converts a raw record into a candidate. Records lacking an
// external id, email or name are rejected with ErrIncompleteRecord.
func MapRecord(record RawRecord) (Candidate, error) {
	switch {
	case record.LDAP != nil:
		return MapLDAPEntry(record.LDAP)
	case record.Google != nil:
		return MapGoogleUser(record.Google)
	default:
		return Candidate{}, ErrIncompleteRecord
	}
}

// MapLDAPEntry applies the LDAP attribute fallbacks:
// objectGUID, entryUUID, uid for the id; mail, email; displayName or
// givenName + sn; telephoneNumber, mobile.
func MapLDAPEntry(entry *ldap.Entry) (Candidate, error) {
	if entry == nil {
		return Candidate{}, ErrIncompleteRecord
	}
	candidate := Candidate{
		ExternalID: firstNonEmpty(
			objectGUIDString(entry.GetRawAttributeValue("objectGUID")),
			entry.GetAttributeValue("entryUUID"),
			entry.GetAttributeValue("uid"),
		),
		Email: firstNonEmpty(entry.GetAttributeValue("mail"), entry.GetAttributeValue("email")),
		Name: firstNonEmpty(
			entry.GetAttributeValue("displayName"),
			joinName(entry.GetAttributeValue("givenName"), entry.GetAttributeValue("sn")),
		),
		Phone: firstNonEmpty(entry.GetAttributeValue("telephoneNumber"), entry.GetAttributeValue("mobile")),
	}
	return candidate, candidate.validate()
}

// MapGoogleUser maps a Workspace user; the phone is the first listed phone value.
func MapGoogleUser(user *admin.User) (Candidate, error) {
	if user == nil {
		return Candidate{}, ErrIncompleteRecord
	}
	name := ""
	if user.Name != nil {
		name = firstNonEmpty(user.Name.FullName, joinName(user.Name.GivenName, user.Name.FamilyName))
	}
	candidate := Candidate{
		ExternalID: strings.TrimSpace(user.Id),
		Email:      strings.TrimSpace(user.PrimaryEmail),
		Name:       name,
		Phone:      firstGooglePhone(user.Phones),
	}
	return candidate, candidate.validate()
}

func (c Candidate) validate() error {
	if c.ExternalID == "" || c.Email == "" || c.Name == "" {
		return ErrIncompleteRecord
	}
	return nil
}

// objectGUIDString renders an Active Directory objectGUID. The first three
// GUID groups are stored little-endian.
func objectGUIDString(raw []byte) string {
	if len(raw) != 16 {
		return ""
	}
	ordered := []byte{
		raw[3], raw[2], raw[1], raw[0],
		raw[5], raw[4],
		raw[7], raw[6],
	}
	ordered = append(ordered, raw[8:]...)
	guid, err := uuid.FromBytes(ordered)
	if err != nil {
		return ""
	}
	return guid.String()
}

type googlePhone struct {
	Value string `json:"value"`
}

// The directory API exposes phones as an untyped JSON value. Blank entries
// are passed over, so a later number wins over an empty first one.
func firstGooglePhone(phones interface{}) string {
	if phones == nil {
		return ""
	}
	encoded, err := json.Marshal(phones)
	if err != nil {
		return ""
	}
	var decoded []googlePhone
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return ""
	}
	for _, phone := range decoded {
		if value := strings.TrimSpace(phone.Value); value != "" {
			return value
		}
	}
	return ""
}

func joinName(given, family string) string {
	return strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(family))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
