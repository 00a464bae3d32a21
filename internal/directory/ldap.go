package directory

import (
	"context"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

const defaultLDAPFilter = "(objectClass=person)"

var defaultLDAPAttributes = []string{
	"objectGUID", "entryUUID", "uid",
	"mail", "email",
	"displayName", "givenName", "sn",
	"telephoneNumber", "mobile",
}

// LDAPConfig mirrors the JSON document stored for an ldap sync config.
type LDAPConfig struct {
	URL             string   `json:"url"`
	BindDN          string   `json:"bindDN"`
	BindCredentials string   `json:"bindCredentials"`
	SearchBase      string   `json:"searchBase"`
	SearchFilter    string   `json:"searchFilter"`
	Attributes      []string `json:"attributes"`
	PageSize        uint32   `json:"pageSize"`
}

// LDAPConn is the subset of an LDAP connection used by LDAPSource.
type LDAPConn interface {
	Bind(username, password string) error
	Search(request *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(request *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close()
}

// LDAPDialer opens a connection to the directory at url.
type LDAPDialer func(ctx context.Context, url string, timeout time.Duration) (LDAPConn, error)

// LDAPSource performs one bind and one subtree search per FetchAll call.
type LDAPSource struct {
	config  LDAPConfig
	dial    LDAPDialer
	timeout time.Duration
	logger  *zap.Logger
}

// NewLDAPSource validates the configuration and constructs the adapter.
func NewLDAPSource(cfg LDAPConfig, opts Options) (*LDAPSource, error) {
	if err := requireField(ProviderLDAP, "url", cfg.URL); err != nil {
		return nil, err
	}
	if err := requireField(ProviderLDAP, "searchBase", cfg.SearchBase); err != nil {
		return nil, err
	}
	if cfg.SearchFilter == "" {
		cfg.SearchFilter = defaultLDAPFilter
	}
	if len(cfg.Attributes) == 0 {
		cfg.Attributes = defaultLDAPAttributes
	}
	dialer := opts.LDAPDialer
	if dialer == nil {
		dialer = dialLDAP
	}
	return &LDAPSource{
		config:  cfg,
		dial:    dialer,
		timeout: opts.timeout(),
		logger:  opts.logger(),
	}, nil
}

// Provider reports the ldap tag.
func (s *LDAPSource) Provider() string {
	return ProviderLDAP
}

// FetchAll binds, searches the configured base and returns every entry. The
// connection is released on every exit path.
func (s *LDAPSource) FetchAll(ctx context.Context) ([]RawRecord, error) {
	conn, err := s.dial(ctx, s.config.URL, s.timeout)
	if err != nil {
		return nil, &BindError{URL: s.config.URL, Err: err}
	}
	defer conn.Close()

	if err := conn.Bind(s.config.BindDN, s.config.BindCredentials); err != nil {
		return nil, &BindError{URL: s.config.URL, Err: err}
	}

	request := ldap.NewSearchRequest(
		s.config.SearchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(s.timeout/time.Second),
		false,
		s.config.SearchFilter,
		s.config.Attributes,
		nil,
	)

	var result *ldap.SearchResult
	if s.config.PageSize > 0 {
		result, err = conn.SearchWithPaging(request, s.config.PageSize)
	} else {
		result, err = conn.Search(request)
	}
	if err != nil {
		return nil, &SearchError{Base: s.config.SearchBase, Err: err}
	}

	records := make([]RawRecord, 0, len(result.Entries))
	for _, entry := range result.Entries {
		records = append(records, RawRecord{Provider: ProviderLDAP, LDAP: entry})
	}
	s.logger.Info("ldap search completed",
		zap.String("search_base", s.config.SearchBase),
		zap.Int("entries", len(records)))
	return records, nil
}

type ldapConnection struct {
	conn *ldap.Conn
}

func (c ldapConnection) Bind(username, password string) error {
	return c.conn.Bind(username, password)
}

func (c ldapConnection) Search(request *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return c.conn.Search(request)
}

func (c ldapConnection) SearchWithPaging(request *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error) {
	return c.conn.SearchWithPaging(request, pagingSize)
}

// Close unbinds, falling back to closing the socket when the unbind cannot be sent.
func (c ldapConnection) Close() {
	if err := c.conn.Unbind(); err != nil {
		c.conn.Close()
	}
}

func dialLDAP(ctx context.Context, url string, timeout time.Duration) (LDAPConn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(timeout)
	return ldapConnection{conn: conn}, nil
}
