package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-platform/internal/storage"
	"rag-knowledge-platform/internal/vectorindex"
)

type HealthHandler struct {
	index *vectorindex.Index
	store *storage.MongoStore
}

func NewHealthHandler(index *vectorindex.Index, store *storage.MongoStore) *HealthHandler {
	return &HealthHandler{index: index, store: store}
}

// HandleHealth reports service health including the metadata store.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	status := http.StatusOK
	overall := "ok"
	storeStatus := "ok"
	if err := h.store.CheckHealth(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		storeStatus = err.Error()
	}

	c.JSON(status, gin.H{
		"status":            overall,
		"metadata_store":    storeStatus,
		"indexed_chunks":    h.index.Len(),
		"indexed_documents": len(h.index.DocumentIDs()),
	})
}

// HandleReady is a liveness probe.
func (h *HealthHandler) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
