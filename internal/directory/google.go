package directory

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	googlePageSize              = 100
	defaultRetryInitialInterval = 500 * time.Millisecond
	defaultRetryMaxTries        = 4
)

// GoogleConfig mirrors the JSON document stored for a google sync config.
type GoogleConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
	RefreshToken string `json:"refreshToken"`
	Domain       string `json:"domain"`
}

// GoogleSource lists the users of a Google Workspace domain.
type GoogleSource struct {
	config        GoogleConfig
	oauth         *oauth2.Config
	endpoint      string
	timeout       time.Duration
	retryInterval time.Duration
	retryMaxTries uint
	logger        *zap.Logger
}

// NewGoogleSource validates the configuration and constructs the adapter.
func NewGoogleSource(cfg GoogleConfig, opts Options) (*GoogleSource, error) {
	required := []struct{ name, value string }{
		{"clientId", cfg.ClientID},
		{"clientSecret", cfg.ClientSecret},
		{"refreshToken", cfg.RefreshToken},
		{"domain", cfg.Domain},
	}
	for _, field := range required {
		if err := requireField(ProviderGoogle, field.name, field.value); err != nil {
			return nil, err
		}
	}

	endpoint := google.Endpoint
	if opts.GoogleTokenURL != "" {
		endpoint.TokenURL = opts.GoogleTokenURL
	}
	retryInterval := opts.RetryInitialInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInitialInterval
	}
	retryMaxTries := opts.RetryMaxTries
	if retryMaxTries == 0 {
		retryMaxTries = defaultRetryMaxTries
	}

	return &GoogleSource{
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{admin.AdminDirectoryUserReadonlyScope},
			Endpoint:     endpoint,
		},
		endpoint:      opts.GoogleEndpoint,
		timeout:       opts.timeout(),
		retryInterval: retryInterval,
		retryMaxTries: retryMaxTries,
		logger:        opts.logger(),
	}, nil
}

// Provider reports the google tag.
func (s *GoogleSource) Provider() string {
	return ProviderGoogle
}

// FetchAll refreshes the OAuth token, then follows page tokens until the
// listing is exhausted. Suspended users and users without a primary email are
// dropped.
func (s *GoogleSource) FetchAll(ctx context.Context) ([]RawRecord, error) {
	httpClient := &http.Client{Timeout: s.timeout}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	tokenSource := s.oauth.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: s.config.RefreshToken})
	if _, err := tokenSource.Token(); err != nil {
		return nil, &AuthError{Err: err}
	}

	serviceOptions := []option.ClientOption{option.WithTokenSource(tokenSource)}
	if s.endpoint != "" {
		serviceOptions = append(serviceOptions, option.WithEndpoint(s.endpoint))
	}
	service, err := admin.NewService(ctx, serviceOptions...)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	var (
		records   []RawRecord
		pageToken string
		page      int
		excluded  int
	)
	for {
		page++
		users, err := s.listPage(ctx, service, pageToken)
		if err != nil {
			return nil, &FetchError{Domain: s.config.Domain, Page: page, Err: err}
		}
		for _, user := range users.Users {
			if user == nil || user.PrimaryEmail == "" || user.Suspended {
				excluded++
				continue
			}
			records = append(records, RawRecord{Provider: ProviderGoogle, Google: user})
		}
		pageToken = users.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.logger.Info("google directory listing completed",
		zap.String("domain", s.config.Domain),
		zap.Int("pages", page),
		zap.Int("users", len(records)),
		zap.Int("excluded", excluded))
	return records, nil
}

func (s *GoogleSource) listPage(ctx context.Context, service *admin.Service, pageToken string) (*admin.Users, error) {
	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.InitialInterval = s.retryInterval

	return backoff.Retry(ctx, func() (*admin.Users, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		call := service.Users.List().
			Domain(s.config.Domain).
			MaxResults(googlePageSize).
			Context(callCtx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		users, err := call.Do()
		if err != nil {
			if !isTransientGoogleError(err) {
				return nil, backoff.Permanent(err)
			}
			s.logger.Warn("google directory page request failed, retrying",
				zap.String("domain", s.config.Domain),
				zap.Error(err))
			return nil, err
		}
		return users, nil
	}, backoff.WithBackOff(retryPolicy), backoff.WithMaxTries(s.retryMaxTries))
}

func isTransientGoogleError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}
