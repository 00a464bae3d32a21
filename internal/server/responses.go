package server

import (
	"github.com/gin-gonic/gin"
)

const (
	codeUnauthorized    = "UNAUTHORIZED"
	codeValidation      = "VALIDATION_ERROR"
	codeDuplicateTenant = "DUPLICATE_TENANT"
	codeDuplicateConfig = "DUPLICATE_CONFIG"
	codeNotFound        = "NOT_FOUND"
	codeAccessDenied    = "ACCESS_DENIED"
	codeInvalidTenant   = "INVALID_TENANT"
	codeNoSyncConfig    = "NO_SYNC_CONFIG"
	codeUnknownProvider = "UNKNOWN_PROVIDER"
	codeSyncInProgress  = "SYNC_IN_PROGRESS"
	codeSyncFailed      = "SYNC_FAILED"
	codeInternal        = "INTERNAL_ERROR"
)

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type envelope struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *errorPayload `json:"error,omitempty"`
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, envelope{Success: false, Error: &errorPayload{Message: message, Code: code}})
}

func respondErrorWithData(c *gin.Context, status int, code, message string, data interface{}) {
	c.JSON(status, envelope{Success: false, Data: data, Error: &errorPayload{Message: message, Code: code}})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: &errorPayload{Message: message, Code: code}})
}
