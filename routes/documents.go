package routes

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/queue"
	"rag-knowledge-platform/internal/storage"
	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/middleware"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/services"
	"rag-knowledge-platform/utils"
)

type DocumentHandler struct {
	pipeline    *services.IndexingPipeline
	index       *vectorindex.Index
	store       *storage.MongoStore
	asynqClient *asynq.Client
}

func NewDocumentHandler(pipeline *services.IndexingPipeline, index *vectorindex.Index, store *storage.MongoStore, asynqClient *asynq.Client) *DocumentHandler {
	return &DocumentHandler{
		pipeline:    pipeline,
		index:       index,
		store:       store,
		asynqClient: asynqClient,
	}
}

// HandleList returns the documents visible to the caller under the same
// filtering the search path applies.
func (h *DocumentHandler) HandleList(c *gin.Context) {
	profile, ok := middleware.GetCallerProfile(c)
	if !ok {
		utils.RespondWithUnauthorized(c, "Authentication required")
		return
	}

	docs := h.index.ListDocuments(vectorindex.Filters{
		Department: profile.Department,
		Role:       profile.Role,
	})
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

type indexRequest struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// HandleIndex enqueues a background indexing task for one source document.
func (h *DocumentHandler) HandleIndex(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "document id is required", gin.H{"error": err.Error()})
		return
	}

	task, err := queue.NewIndexDocumentTask(models.SourceFile{
		ID:       req.ID,
		Name:     req.Name,
		MimeType: req.MimeType,
	})
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build task", nil)
		return
	}

	info, err := h.asynqClient.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to enqueue indexing task", nil)
		return
	}

	logger.Info("indexing task enqueued", "document_id", req.ID, "task_id", info.ID)
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "document_id": req.ID})
}

// HandleUpload indexes a manually uploaded text document synchronously.
// Uploaded documents are exempt from sync pruning.
func (h *DocumentHandler) HandleUpload(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		utils.RespondWithBadRequest(c, "name query parameter is required", nil)
		return
	}

	content, err := io.ReadAll(c.Request.Body)
	if err != nil || len(content) == 0 {
		utils.RespondWithBadRequest(c, "request body must carry the document text", nil)
		return
	}

	file := models.SourceFile{
		ID:           "upload/" + name,
		Name:         name,
		MimeType:     "text/plain",
		ModifiedTime: time.Now().UTC(),
	}

	docID, err := h.pipeline.IndexUpload(c.Request.Context(), file, content)
	if err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			utils.RespondWithConflict(c, "sync_in_progress", "A full sync is running; retry shortly")
			return
		}
		if errors.Is(err, services.ErrProviderTimeout) {
			utils.RespondWithGatewayTimeout(c, "Embedding provider timed out; retry shortly")
			return
		}
		utils.RespondWithInternalError(c, "Indexing failed", gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document_id": docID,
		"chunk_count": h.index.ChunkCount(docID),
	})
}

// HandleDelete removes a document from the index and all metadata stores.
// Document ids may contain slashes, so the id travels as a query parameter.
func (h *DocumentHandler) HandleDelete(c *gin.Context) {
	documentID := c.Query("id")
	if documentID == "" {
		utils.RespondWithBadRequest(c, "id query parameter is required", nil)
		return
	}
	if !h.index.HasDocument(documentID) {
		utils.RespondWithNotFound(c, "Document is not indexed")
		return
	}

	if err := h.pipeline.DeleteDocument(c.Request.Context(), documentID, middleware.GetUserID(c)); err != nil {
		utils.RespondWithInternalError(c, "Delete failed", gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": documentID, "deleted": true})
}

type overrideRequest struct {
	DocumentID  string `json:"document_id" binding:"required"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Sensitivity string `json:"sensitivity"`
	Department  string `json:"department"`
	Owner       string `json:"owner"`
}

// HandleSetOverride stores sticky metadata fields for a document. They take
// precedence over front matter and heuristics on the next re-index.
func (h *DocumentHandler) HandleSetOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "document_id is required", gin.H{"error": err.Error()})
		return
	}

	if req.Sensitivity != "" && !vectorindex.KnownSensitivity(req.Sensitivity) {
		utils.RespondWithBadRequest(c, "unknown sensitivity level", gin.H{"sensitivity": req.Sensitivity})
		return
	}

	override := models.MetadataOverride{
		DocumentID:  req.DocumentID,
		Title:       req.Title,
		Category:    req.Category,
		Sensitivity: req.Sensitivity,
		Department:  req.Department,
		Owner:       req.Owner,
	}
	if override.IsZero() {
		utils.RespondWithBadRequest(c, "override sets no field", nil)
		return
	}

	if err := h.pipeline.SetOverride(c.Request.Context(), override); err != nil {
		utils.RespondWithInternalError(c, "Failed to store override", gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": req.DocumentID, "stored": true})
}

// HandleSync enqueues a full-corpus sync.
func (h *DocumentHandler) HandleSync(c *gin.Context) {
	if h.pipeline.Syncing() {
		utils.RespondWithConflict(c, "sync_in_progress", "A full sync is already running")
		return
	}

	task, err := queue.NewCorpusSyncTask()
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build task", nil)
		return
	}
	info, err := h.asynqClient.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to enqueue sync", nil)
		return
	}

	logger.Info("corpus sync enqueued", "task_id", info.ID, "requested_by", middleware.GetUserID(c))
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
}

// HandleSyncStatus lists per-document sync outcomes, newest first.
func (h *DocumentHandler) HandleSyncStatus(c *gin.Context) {
	statuses, err := h.store.ListSyncStatuses(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list sync statuses", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"syncing":  h.pipeline.Syncing(),
		"statuses": statuses,
	})
}

// HandleHistory lists recent pipeline events, optionally scoped to one
// document via ?id=.
func (h *DocumentHandler) HandleHistory(c *gin.Context) {
	events, err := h.store.ListHistoryEvents(c.Request.Context(), c.Query("id"), 100)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list history", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleSnapshot returns the raw text captured at index time.
func (h *DocumentHandler) HandleSnapshot(c *gin.Context) {
	documentID := c.Query("id")
	if documentID == "" {
		utils.RespondWithBadRequest(c, "id query parameter is required", nil)
		return
	}

	text, err := h.store.GetSnapshot(c.Request.Context(), documentID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load snapshot", nil)
		return
	}
	if text == nil {
		utils.RespondWithNotFound(c, "No snapshot for this document")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", text)
}
