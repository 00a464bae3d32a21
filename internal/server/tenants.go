package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createTenantRequest struct {
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	CustomerID string `json:"customerId"`
}

type tenantPayload struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Domain     string    `json:"domain"`
	CustomerID string    `json:"customerId"`
	APIKey     string    `json:"apiKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newTenantPayload(tenant roster.Tenant) tenantPayload {
	return tenantPayload{
		ID:         tenant.ID,
		Name:       tenant.Name,
		Domain:     tenant.Domain,
		CustomerID: tenant.CustomerID,
		CreatedAt:  tenant.CreatedAt,
	}
}

func (h *httpHandler) handleListTenants(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list tenants", zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to list tenants")
		return
	}
	response := make([]tenantPayload, 0, len(tenants))
	for _, tenant := range tenants {
		response = append(response, newTenantPayload(tenant))
	}
	respondData(c, http.StatusOK, response)
}

// handleCreateTenant provisions a tenant and its default team. The API key is
// only returned here.
func (h *httpHandler) handleCreateTenant(c *gin.Context) {
	var request createTenantRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	tenant, err := h.tenants.Create(c.Request.Context(), roster.TenantDraft{
		Name:       request.Name,
		Domain:     request.Domain,
		CustomerID: request.CustomerID,
	})
	switch {
	case errors.Is(err, roster.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, codeValidation, "name, domain and customerId are required")
		return
	case errors.Is(err, roster.ErrDuplicateTenant):
		respondError(c, http.StatusConflict, codeDuplicateTenant, "a tenant with this domain or customer id already exists")
		return
	case err != nil:
		h.logger.Error("failed to create tenant", zap.String("domain", request.Domain), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to create tenant")
		return
	}

	h.logger.Info("tenant provisioned",
		zap.String("tenant_id", tenant.ID),
		zap.String("admin", c.GetString(adminSubjectContextKey)))
	payload := newTenantPayload(tenant)
	payload.APIKey = tenant.APIKey
	respondData(c, http.StatusCreated, payload)
}
