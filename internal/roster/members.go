package roster

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListMembers  = "roster.members.list_by_tenant"
	opCreateMember = "roster.members.create"
	opUpdateMember = "roster.members.update_directory_fields"
)

// MemberStore persists members.
type MemberStore struct {
	base storeBase
}

// ListByTenant returns every member of the tenant ordered by creation.
func (s *MemberStore) ListByTenant(ctx context.Context, tenantID string) ([]Member, error) {
	if s == nil || s.base.db == nil {
		return nil, newServiceError(opListMembers, reasonMissingDB, errMissingDatabase)
	}
	var members []Member
	if err := s.base.db.WithContext(ctx).
		Where(queryTenantID, tenantID).
		Order(orderCreatedAtAsc).
		Find(&members).Error; err != nil {
		logError(s.base.logger, opListMembers, reasonQueryFailed, err, zap.String("tenant_id", tenantID))
		return nil, newServiceError(opListMembers, reasonQueryFailed, err)
	}
	return members, nil
}

// Create inserts a member built from the draft.
func (s *MemberStore) Create(ctx context.Context, draft MemberDraft) (Member, error) {
	if s == nil || s.base.db == nil {
		return Member{}, newServiceError(opCreateMember, reasonMissingDB, errMissingDatabase)
	}
	if strings.TrimSpace(draft.TenantID) == "" || strings.TrimSpace(draft.TeamID) == "" ||
		strings.TrimSpace(draft.Email) == "" || strings.TrimSpace(draft.Name) == "" {
		return Member{}, newServiceError(opCreateMember, reasonInvalidInput, ErrInvalidInput)
	}
	id, err := s.base.ids.NewID()
	if err != nil {
		logError(s.base.logger, opCreateMember, reasonIDFailed, err)
		return Member{}, newServiceError(opCreateMember, reasonIDFailed, err)
	}

	role := strings.TrimSpace(draft.Role)
	if role == "" {
		role = DefaultMemberRole
	}
	skills := draft.Skills
	if skills == nil {
		skills = []string{}
	}
	member := Member{
		ID:         id,
		TenantID:   draft.TenantID,
		ExternalID: optionalString(draft.ExternalID),
		Name:       draft.Name,
		Email:      NormalizeEmail(draft.Email),
		Role:       role,
		TeamID:     draft.TeamID,
		IsOnCall:   draft.IsOnCall,
		Phone:      optionalString(draft.Phone),
		Skills:     skills,
	}
	if err := s.base.db.WithContext(ctx).Create(&member).Error; err != nil {
		logError(s.base.logger, opCreateMember, reasonInsertFailed, err,
			zap.String("tenant_id", draft.TenantID),
			zap.String("external_id", draft.ExternalID))
		return Member{}, newServiceError(opCreateMember, reasonInsertFailed, err)
	}
	return member, nil
}

// UpdateDirectoryFields overwrites only the directory-owned attributes of a member.
func (s *MemberStore) UpdateDirectoryFields(ctx context.Context, memberID string, fields DirectoryFields) (Member, error) {
	if s == nil || s.base.db == nil {
		return Member{}, newServiceError(opUpdateMember, reasonMissingDB, errMissingDatabase)
	}
	updates := map[string]interface{}{
		"name":       fields.Name,
		"email":      NormalizeEmail(fields.Email),
		"updated_at": s.base.clock().UTC(),
	}
	if fields.Phone != nil {
		updates["phone"] = *fields.Phone
	}

	var member Member
	txErr := s.base.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Member{}).Where(queryID, memberID).Updates(updates)
		if result.Error != nil {
			return newServiceError(opUpdateMember, reasonUpdateFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdateMember, reasonNotFound, ErrNotFound)
		}
		if err := tx.Where(queryID, memberID).Take(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opUpdateMember, reasonNotFound, ErrNotFound)
			}
			return newServiceError(opUpdateMember, reasonQueryFailed, err)
		}
		return nil
	})
	if txErr != nil {
		logError(s.base.logger, opUpdateMember, reasonUpdateFailed, txErr, zap.String("member_id", memberID))
		return Member{}, txErr
	}
	return member, nil
}

// NormalizeEmail trims and lowercases an address before it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
