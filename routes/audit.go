package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"rag-knowledge-platform/models"
	"rag-knowledge-platform/utils"
)

type AuditHandler struct {
	auditLogger *models.AuditLogger
}

func NewAuditHandler(auditLogger *models.AuditLogger) *AuditHandler {
	return &AuditHandler{auditLogger: auditLogger}
}

// HandleQueryRecords lists audit records, optionally filtered by user and
// action. Admin only.
func (h *AuditHandler) HandleQueryRecords(c *gin.Context) {
	filter := bson.M{}
	if userID := c.Query("user_id"); userID != "" {
		filter["user_id"] = userID
	}
	if action := c.Query("action"); action != "" {
		filter["action"] = action
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	records, total, err := h.auditLogger.QueryRecords(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to query audit records", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":   records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// HandleVerifyChain validates the per-user hash chain, detecting tampered
// or deleted audit records.
func (h *AuditHandler) HandleVerifyChain(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		utils.RespondWithBadRequest(c, "user_id query parameter is required", nil)
		return
	}

	intact, err := h.auditLogger.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		utils.RespondWithInternalError(c, "Chain verification failed", gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "chain_intact": intact})
}
