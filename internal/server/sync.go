package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/directory"
	"github.com/MarcoPoloResearchLab/roster/internal/dirsync"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type syncSummaryPayload struct {
	dirsync.Summary
	Error string `json:"error,omitempty"`
}

type syncEventPayload struct {
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Summary   syncSummaryPayload `json:"summary"`
}

func newSyncSummaryPayloads(summaries []dirsync.Summary) []syncSummaryPayload {
	payloads := make([]syncSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payloads = append(payloads, newSyncSummaryPayload(summary))
	}
	return payloads
}

func newSyncSummaryPayload(summary dirsync.Summary) syncSummaryPayload {
	payload := syncSummaryPayload{Summary: summary}
	if summary.Err != nil {
		payload.Error = summary.Err.Error()
	}
	return payload
}

func (h *httpHandler) handleTriggerSync(c *gin.Context) {
	tenant, ok := h.resolveTenant(c)
	if !ok {
		return
	}
	tenantID := tenant.ID
	summaries, err := h.sync.RunSync(context.WithoutCancel(c.Request.Context()), &tenantID)

	var unknownProvider *directory.UnknownProviderError
	switch {
	case err == nil:
		respondData(c, http.StatusOK, newSyncSummaryPayloads(summaries))
	case errors.Is(err, dirsync.ErrNoSyncConfig):
		respondError(c, http.StatusNotFound, codeNoSyncConfig, "no sync configuration found for tenant")
	case errors.As(err, &unknownProvider):
		respondError(c, http.StatusBadRequest, codeUnknownProvider, fmt.Sprintf("unknown provider: %s", unknownProvider.Provider))
	case onlyRunsInProgress(summaries):
		respondErrorWithData(c, http.StatusConflict, codeSyncInProgress, "a sync is already running for this tenant", newSyncSummaryPayloads(summaries))
	default:
		h.logger.Error("on-demand sync failed", zap.String("tenant_id", tenantID), zap.Error(err))
		respondErrorWithData(c, http.StatusInternalServerError, codeSyncFailed, err.Error(), newSyncSummaryPayloads(summaries))
	}
}

// onlyRunsInProgress reports whether every failed run was rejected by the run lock.
func onlyRunsInProgress(summaries []dirsync.Summary) bool {
	rejected := 0
	for _, summary := range summaries {
		if summary.Err == nil {
			continue
		}
		if !errors.Is(summary.Err, dirsync.ErrRunInProgress) {
			return false
		}
		rejected++
	}
	return rejected > 0
}

// handleSyncEvents streams the tenant's sync outcomes as server-sent events.
func (h *httpHandler) handleSyncEvents(c *gin.Context) {
	tenant, ok := h.resolveTenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, tenant.ID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(syncEventHeartbeat, gin.H{"source": syncEventSourceBackend})
	c.Writer.Flush()

	heartbeat := time.NewTicker(syncEventHeartbeatEvery)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(event.EventType, syncEventPayload{
				Source:    syncEventSourceBackend,
				Timestamp: event.Timestamp,
				Summary:   newSyncSummaryPayload(event.Summary),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(syncEventHeartbeat, gin.H{"source": syncEventSourceBackend})
			return true
		}
	})
	h.logger.Debug("sync event stream closed", zap.String("tenant_id", tenant.ID))
}
