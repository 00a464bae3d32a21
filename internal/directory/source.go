// Package directory reads users from external identity directories and maps
// them onto roster member candidates.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
	admin "google.golang.org/api/admin/directory/v1"
)

const (
	// ProviderLDAP names the LDAP directory variant.
	ProviderLDAP = "ldap"
	// ProviderGoogle names the Google Workspace directory variant.
	ProviderGoogle = "google"

	defaultTimeout = 30 * time.Second
)

// Source yields the raw user records of one directory provider.
type Source interface {
	Provider() string
	FetchAll(ctx context.Context) ([]RawRecord, error)
}

// RawRecord is one external user as returned by a provider. Exactly one of
// LDAP or Google is set, matching Provider.
type RawRecord struct {
	Provider string
	LDAP     *ldap.Entry
	Google   *admin.User
}

// Candidate is the normalized identity of an external user.
type Candidate struct {
	ExternalID string
	Name       string
	Email      string
	Phone      string
}

// Options tunes adapter construction. Zero values select defaults.
type Options struct {
	Timeout    time.Duration
	Logger     *zap.Logger
	LDAPDialer LDAPDialer
	// GoogleEndpoint and GoogleTokenURL override the public Google endpoints.
	GoogleEndpoint       string
	GoogleTokenURL       string
	RetryInitialInterval time.Duration
	RetryMaxTries        uint
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// NewSource decodes a provider configuration document and builds its adapter.
func NewSource(provider string, rawConfig []byte, opts Options) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderLDAP:
		var cfg LDAPConfig
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, &ConfigError{Provider: ProviderLDAP, Err: err}
		}
		source, err := NewLDAPSource(cfg, opts)
		if err != nil {
			return nil, err
		}
		return source, nil
	case ProviderGoogle:
		var cfg GoogleConfig
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, &ConfigError{Provider: ProviderGoogle, Err: err}
		}
		source, err := NewGoogleSource(cfg, opts)
		if err != nil {
			return nil, err
		}
		return source, nil
	default:
		return nil, &UnknownProviderError{Provider: provider}
	}
}

func requireField(provider, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ConfigError{Provider: provider, Err: fmt.Errorf("%s is required", name)}
	}
	return nil
}
