package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/services"
)

const (
	TaskIndexDocument = "document:index"
	TaskCorpusSync    = "corpus:sync"
)

type IndexDocumentPayload struct {
	File models.SourceFile `json:"file"`
}

// Task creators

func NewIndexDocumentTask(file models.SourceFile) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexDocumentPayload{File: file})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIndexDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewCorpusSyncTask() (*asynq.Task, error) {
	return asynq.NewTask(
		TaskCorpusSync,
		nil,
		asynq.MaxRetry(5),
		asynq.Timeout(60*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor handles queued indexing work against the shared pipeline.
type TaskProcessor struct {
	pipeline *services.IndexingPipeline
}

func NewTaskProcessor(pipeline *services.IndexingPipeline) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

// HandleIndexDocument indexes a single document. ErrSyncInProgress is
// returned as-is so asynq retries after backoff instead of dropping the
// task while a full sync holds the index.
func (p *TaskProcessor) HandleIndexDocument(ctx context.Context, t *asynq.Task) error {
	var payload IndexDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal index payload: %v: %w", err, asynq.SkipRetry)
	}

	docID, err := p.pipeline.IndexDocument(ctx, payload.File)
	if err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			return err
		}
		logger.Error("queued index failed", "document_id", payload.File.ID, "error", err)
		return err
	}

	logger.Info("queued index complete", "document_id", docID)
	return nil
}

// HandleCorpusSync runs a full-corpus sync.
func (p *TaskProcessor) HandleCorpusSync(ctx context.Context, t *asynq.Task) error {
	report, err := p.pipeline.FullSync(ctx)
	if err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			return err
		}
		logger.Error("queued sync failed", "error", err)
		return err
	}

	logger.Info("queued sync complete",
		"indexed", report.Indexed, "failed", report.Failed, "pruned", report.Pruned)
	return nil
}

// Register binds the processor's handlers onto an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIndexDocument, p.HandleIndexDocument)
	mux.HandleFunc(TaskCorpusSync, p.HandleCorpusSync)
}
