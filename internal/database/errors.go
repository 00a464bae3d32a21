package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Reason classifies a storage failure for reporting.
type Reason string

const (
	ReasonDuplicate  Reason = "DUPLICATE"
	ReasonForeignKey Reason = "FOREIGN_KEY"
	ReasonNotFound   Reason = "NOT_FOUND"
	ReasonStorage    Reason = "STORAGE_ERROR"
)

// Classify maps driver-specific write errors onto a Reason.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ReasonDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ReasonForeignKey
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ReasonNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ReasonDuplicate
		case pgerrcode.ForeignKeyViolation:
			return ReasonForeignKey
		default:
			return ReasonStorage
		}
	}

	// The pure-Go sqlite driver reports constraint failures as plain text.
	message := err.Error()
	switch {
	case strings.Contains(message, "UNIQUE constraint failed"):
		return ReasonDuplicate
	case strings.Contains(message, "FOREIGN KEY constraint failed"):
		return ReasonForeignKey
	default:
		return ReasonStorage
	}
}
