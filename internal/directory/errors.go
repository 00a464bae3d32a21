package directory

import (
	"errors"
	"fmt"
)

// ReasonIncompleteRecord is reported for records missing an id, email or name.
const ReasonIncompleteRecord = "INCOMPLETE_RECORD"

// ErrIncompleteRecord rejects a record that cannot be mapped to a candidate.
var ErrIncompleteRecord = errors.New("directory: incomplete record")

// BindError reports a failed LDAP dial or bind.
type BindError struct {
	URL string
	Err error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("ldap bind to %s failed: %v", e.URL, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// SearchError reports a failed LDAP search after a successful bind.
type SearchError struct {
	Base string
	Err  error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("ldap search under %s failed: %v", e.Base, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// AuthError reports a failed OAuth token refresh.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("google directory authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed directory listing request.
type FetchError struct {
	Domain string
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("google directory listing for %s failed on page %d: %v", e.Domain, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UnknownProviderError reports a provider tag without an adapter.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %s", e.Provider)
}

// ConfigError reports an unusable provider configuration document.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
