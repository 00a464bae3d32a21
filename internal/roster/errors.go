package roster

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("roster: not found")
	// ErrDuplicateTenant indicates a tenant with the same domain or customer id exists.
	ErrDuplicateTenant = errors.New("roster: duplicate tenant")
	// ErrDuplicateSyncConfig indicates the tenant already has a config for the provider.
	ErrDuplicateSyncConfig = errors.New("roster: duplicate sync config")
	// ErrUnknownProvider indicates an unsupported provider tag.
	ErrUnknownProvider = errors.New("roster: unknown provider")
	// ErrInvalidInput indicates a draft failed validation.
	ErrInvalidInput = errors.New("roster: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable "operation.reason" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	if logger == nil {
		logger = noOpLogger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("roster store error", attrs...)
}
