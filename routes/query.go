package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-platform/internal/ai"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/middleware"
	"rag-knowledge-platform/services"
	"rag-knowledge-platform/utils"
)

const maxQueryLength = 4000

type QueryHandler struct {
	orchestrator *services.RetrievalOrchestrator
	quota        *ai.QuotaStore
	metrics      *telemetry.Metrics
}

func NewQueryHandler(orchestrator *services.RetrievalOrchestrator, quota *ai.QuotaStore, metrics *telemetry.Metrics) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		quota:        quota,
		metrics:      metrics,
	}
}

type queryRequest struct {
	Query   string   `json:"query" binding:"required"`
	History []string `json:"history"`
}

// HandleQuery answers one question for the authenticated caller.
func (h *QueryHandler) HandleQuery(c *gin.Context) {
	profile, ok := middleware.GetCallerProfile(c)
	if !ok {
		utils.RespondWithUnauthorized(c, "Authentication required")
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "query is required", gin.H{"error": err.Error()})
		return
	}
	if len(req.Query) > maxQueryLength {
		utils.RespondWithBadRequest(c, "query too long", gin.H{"max_length": maxQueryLength})
		return
	}

	if err := h.quota.Check(c.Request.Context(), profile.UserID, len(req.Query)/4); err != nil {
		if errors.Is(err, ai.ErrQuotaExceeded) {
			utils.RespondWithTooManyRequests(c, "Daily token quota exceeded")
			return
		}
		// Quota store outage fails open, same as the rate limiter.
	}

	resp := h.orchestrator.Query(c.Request.Context(), req.Query, profile, req.History, middleware.GetRequestID(c))

	if h.metrics != nil {
		outcome := "answered"
		if resp.Answer == "" || !resp.Integrity.Verified {
			outcome = "flagged"
		}
		h.metrics.RecordQuery(outcome, resp.Integrity.Verified)
		if resp.TokensUsed > 0 {
			h.metrics.RecordTokensUsed(int64(resp.TokensUsed), "gemini")
		}
	}
	if resp.TokensUsed > 0 {
		if err := h.quota.Record(c.Request.Context(), profile.UserID, resp.TokensUsed); err != nil {
			logger.Warn("quota record failed", "user_id", profile.UserID, "error", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// HandleQuotaStatus reports the caller's remaining daily token budget.
func (h *QueryHandler) HandleQuotaStatus(c *gin.Context) {
	profile, ok := middleware.GetCallerProfile(c)
	if !ok {
		utils.RespondWithUnauthorized(c, "Authentication required")
		return
	}

	quota, err := h.quota.Status(c.Request.Context(), profile.UserID)
	if err != nil {
		utils.RespondWithNotFound(c, "No quota record yet")
		return
	}
	c.JSON(http.StatusOK, quota)
}
