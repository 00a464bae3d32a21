package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/dirsync"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	adminSubjectContextKey = "roster_admin_subject"
	accessTokenQueryParam  = "access_token"
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingTenantStore    = errors.New("tenant store dependency required")
	errMissingSyncConfigs    = errors.New("sync config store dependency required")
	errMissingSyncRunner     = errors.New("sync runner dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator validates admin bearer tokens and returns their subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// TenantStore provisions and reads tenants.
type TenantStore interface {
	Create(ctx context.Context, draft roster.TenantDraft) (roster.Tenant, error)
	Get(ctx context.Context, tenantID string) (roster.Tenant, error)
	List(ctx context.Context) ([]roster.Tenant, error)
}

// SyncConfigStore manages the sync configurations of a tenant.
type SyncConfigStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]roster.SyncConfig, error)
	Get(ctx context.Context, configID string) (roster.SyncConfig, error)
	Create(ctx context.Context, tenantID, provider string, config json.RawMessage) (roster.SyncConfig, error)
	UpdateConfig(ctx context.Context, configID string, config json.RawMessage) (roster.SyncConfig, error)
	Delete(ctx context.Context, configID string) error
}

// SyncRunner triggers directory synchronization.
type SyncRunner interface {
	RunSync(ctx context.Context, tenantID *string) ([]dirsync.Summary, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Tokens         TokenValidator
	Tenants        TenantStore
	SyncConfigs    SyncConfigStore
	Sync           SyncRunner
	Events         *SyncEventDispatcher
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the administrative API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Tenants == nil {
		return nil, errMissingTenantStore
	}
	if deps.SyncConfigs == nil {
		return nil, errMissingSyncConfigs
	}
	if deps.Sync == nil {
		return nil, errMissingSyncRunner
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:      deps.Tokens,
		tenants:     deps.Tenants,
		syncConfigs: deps.SyncConfigs,
		sync:        deps.Sync,
		events:      deps.Events,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)
	api.GET("/admin/tenants", handler.handleListTenants)
	api.POST("/admin/tenants", handler.handleCreateTenant)

	tenant := api.Group("/tenants/:tenantID")
	tenant.GET("/sync-configs", handler.handleListSyncConfigs)
	tenant.POST("/sync-configs", handler.handleCreateSyncConfig)
	tenant.GET("/sync-configs/:configID", handler.handleGetSyncConfig)
	tenant.PUT("/sync-configs/:configID", handler.handleUpdateSyncConfig)
	tenant.DELETE("/sync-configs/:configID", handler.handleDeleteSyncConfig)
	tenant.POST("/sync", handler.handleTriggerSync)
	if deps.Events != nil {
		tenant.GET("/sync/events", handler.handleSyncEvents)
	}

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	tokens      TokenValidator
	tenants     TenantStore
	syncConfigs SyncConfigStore
	sync        SyncRunner
	events      *SyncEventDispatcher
	logger      *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case header == "":
		token = strings.TrimSpace(c.Query(accessTokenQueryParam))
	}
	if token == "" {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, errInvalidAuthorization.Error())
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}

// resolveTenant loads the path tenant, answering INVALID_TENANT when it does not exist.
func (h *httpHandler) resolveTenant(c *gin.Context) (roster.Tenant, bool) {
	tenantID := strings.TrimSpace(c.Param("tenantID"))
	tenant, err := h.tenants.Get(c.Request.Context(), tenantID)
	if errors.Is(err, roster.ErrNotFound) {
		respondError(c, http.StatusNotFound, codeInvalidTenant, "tenant not found")
		return roster.Tenant{}, false
	}
	if err != nil {
		h.logger.Error("failed to load tenant", zap.String("tenant_id", tenantID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load tenant")
		return roster.Tenant{}, false
	}
	return tenant, true
}
