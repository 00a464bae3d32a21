package roster

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var badgeColorPattern = regexp.MustCompile(`^#([0-9A-Fa-f]{3}){1,2}$`)

// BadgeStore persists badges and their assignments.
type BadgeStore struct {
	base storeBase
}

// Create inserts a badge for the tenant. An empty color falls back to DefaultBadgeColor.
func (s *BadgeStore) Create(ctx context.Context, tenantID, name, description, color string) (Badge, error) {
	const operation = "roster.badges.create"
	if s == nil || s.base.db == nil {
		return Badge{}, newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultBadgeColor
	}
	if name == "" || len(name) > 50 || !badgeColorPattern.MatchString(color) {
		return Badge{}, newServiceError(operation, reasonInvalidInput, ErrInvalidInput)
	}
	id, err := s.base.ids.NewID()
	if err != nil {
		return Badge{}, newServiceError(operation, reasonIDFailed, err)
	}
	badge := Badge{ID: id, TenantID: tenantID, Name: name, Description: description, Color: color}
	if err := s.base.db.WithContext(ctx).Create(&badge).Error; err != nil {
		logError(s.base.logger, operation, reasonInsertFailed, err, zap.String("tenant_id", tenantID))
		return Badge{}, newServiceError(operation, reasonInsertFailed, err)
	}
	return badge, nil
}

// Assign awards a badge to a member.
func (s *BadgeStore) Assign(ctx context.Context, memberID, badgeID string) error {
	const operation = "roster.badges.assign"
	if s == nil || s.base.db == nil {
		return newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	assignment := MemberBadge{MemberID: memberID, BadgeID: badgeID}
	if err := s.base.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		logError(s.base.logger, operation, reasonInsertFailed, err,
			zap.String("member_id", memberID),
			zap.String("badge_id", badgeID))
		return newServiceError(operation, reasonInsertFailed, err)
	}
	return nil
}
