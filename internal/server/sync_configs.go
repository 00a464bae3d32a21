package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createSyncConfigRequest struct {
	Provider string          `json:"provider"`
	Config   json.RawMessage `json:"config"`
}

type updateSyncConfigRequest struct {
	Config json.RawMessage `json:"config"`
}

type syncConfigPayload struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	Provider     string          `json:"provider"`
	Config       json.RawMessage `json:"config"`
	LastSyncedAt *time.Time      `json:"lastSyncedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func newSyncConfigPayload(config roster.SyncConfig) syncConfigPayload {
	return syncConfigPayload{
		ID:           config.ID,
		TenantID:     config.TenantID,
		Provider:     config.Provider,
		Config:       json.RawMessage(config.Config),
		LastSyncedAt: config.LastSyncedAt,
		CreatedAt:    config.CreatedAt,
		UpdatedAt:    config.UpdatedAt,
	}
}

func (h *httpHandler) handleListSyncConfigs(c *gin.Context) {
	tenant, ok := h.resolveTenant(c)
	if !ok {
		return
	}
	configs, err := h.syncConfigs.ListByTenant(c.Request.Context(), tenant.ID)
	if err != nil {
		h.logger.Error("failed to list sync configs", zap.String("tenant_id", tenant.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to list sync configurations")
		return
	}
	response := make([]syncConfigPayload, 0, len(configs))
	for _, config := range configs {
		response = append(response, newSyncConfigPayload(config))
	}
	respondData(c, http.StatusOK, response)
}

func (h *httpHandler) handleCreateSyncConfig(c *gin.Context) {
	tenant, ok := h.resolveTenant(c)
	if !ok {
		return
	}
	var request createSyncConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	config, err := h.syncConfigs.Create(c.Request.Context(), tenant.ID, request.Provider, request.Config)
	switch {
	case errors.Is(err, roster.ErrUnknownProvider):
		respondError(c, http.StatusBadRequest, codeValidation, "provider must be one of ldap, google")
		return
	case errors.Is(err, roster.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, codeValidation, "config must be a JSON object")
		return
	case errors.Is(err, roster.ErrDuplicateSyncConfig):
		respondError(c, http.StatusConflict, codeDuplicateConfig,
			"a sync configuration for provider "+strings.ToLower(strings.TrimSpace(request.Provider))+" already exists")
		return
	case err != nil:
		h.logger.Error("failed to create sync config", zap.String("tenant_id", tenant.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to create sync configuration")
		return
	}
	respondData(c, http.StatusCreated, newSyncConfigPayload(config))
}

func (h *httpHandler) handleGetSyncConfig(c *gin.Context) {
	config, ok := h.ownedSyncConfig(c)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, newSyncConfigPayload(config))
}

func (h *httpHandler) handleUpdateSyncConfig(c *gin.Context) {
	existing, ok := h.ownedSyncConfig(c)
	if !ok {
		return
	}
	var request updateSyncConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	config, err := h.syncConfigs.UpdateConfig(c.Request.Context(), existing.ID, request.Config)
	switch {
	case errors.Is(err, roster.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, codeValidation, "config must be a JSON object")
		return
	case errors.Is(err, roster.ErrNotFound):
		respondError(c, http.StatusNotFound, codeNotFound, "sync configuration not found")
		return
	case err != nil:
		h.logger.Error("failed to update sync config", zap.String("sync_config_id", existing.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to update sync configuration")
		return
	}
	respondData(c, http.StatusOK, newSyncConfigPayload(config))
}

func (h *httpHandler) handleDeleteSyncConfig(c *gin.Context) {
	existing, ok := h.ownedSyncConfig(c)
	if !ok {
		return
	}
	err := h.syncConfigs.Delete(c.Request.Context(), existing.ID)
	switch {
	case errors.Is(err, roster.ErrNotFound):
		respondError(c, http.StatusNotFound, codeNotFound, "sync configuration not found")
		return
	case err != nil:
		h.logger.Error("failed to delete sync config", zap.String("sync_config_id", existing.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to delete sync configuration")
		return
	}
	respondData(c, http.StatusOK, gin.H{"id": existing.ID, "deleted": true})
}

// ownedSyncConfig loads the path config and checks it belongs to the path tenant.
func (h *httpHandler) ownedSyncConfig(c *gin.Context) (roster.SyncConfig, bool) {
	tenant, ok := h.resolveTenant(c)
	if !ok {
		return roster.SyncConfig{}, false
	}
	configID := strings.TrimSpace(c.Param("configID"))
	config, err := h.syncConfigs.Get(c.Request.Context(), configID)
	if errors.Is(err, roster.ErrNotFound) {
		respondError(c, http.StatusNotFound, codeNotFound, "sync configuration not found")
		return roster.SyncConfig{}, false
	}
	if err != nil {
		h.logger.Error("failed to load sync config", zap.String("sync_config_id", configID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load sync configuration")
		return roster.SyncConfig{}, false
	}
	if config.TenantID != tenant.ID {
		h.logger.Warn("sync config requested by foreign tenant",
			zap.String("tenant_id", tenant.ID),
			zap.String("sync_config_id", configID))
		respondError(c, http.StatusForbidden, codeAccessDenied, "sync configuration belongs to another tenant")
		return roster.SyncConfig{}, false
	}
	return config, true
}
