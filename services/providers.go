package services

import (
	"context"

	"rag-knowledge-platform/models"
)

// EmbeddingProvider produces an embedding vector for a piece of text.
// Calls are bounded by the caller's context deadline.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerationProvider produces an answer grounded in the supplied context
// blocks. The provider is prompted for a structured JSON body but may
// return free text; callers must tolerate both.
type GenerationProvider interface {
	Generate(ctx context.Context, query string, contextBlocks []string, profile models.CallerProfile, history []string) (*models.GenerationResult, error)
}

// SourceConnector is the document source (cloud file storage or similar).
type SourceConnector interface {
	List(ctx context.Context, folder string) ([]models.SourceFile, error)
	Export(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, name string) error
}

// MetadataStore persists the state the pipeline owns outside the index:
// sticky overrides, per-document sync status, raw-text snapshots, and
// history events.
type MetadataStore interface {
	GetOverride(ctx context.Context, documentID string) (*models.MetadataOverride, error)
	SetOverride(ctx context.Context, override models.MetadataOverride) error
	RemoveOverride(ctx context.Context, documentID string) error

	SaveSyncStatus(ctx context.Context, status models.SyncStatus) error
	GetSyncStatus(ctx context.Context, documentID string) (*models.SyncStatus, error)
	ListSyncStatuses(ctx context.Context) ([]models.SyncStatus, error)
	RemoveSyncStatus(ctx context.Context, documentID string) error

	SaveSnapshot(ctx context.Context, documentID string, text []byte) error
	GetSnapshot(ctx context.Context, documentID string) ([]byte, error)

	AddHistoryEvent(ctx context.Context, event models.HistoryEvent) error

	CheckHealth(ctx context.Context) error
}

// AuditSink records access decisions. Fire-and-forget from the
// orchestrator's perspective: a sink failure never fails a response.
type AuditSink interface {
	Log(ctx context.Context, record models.AuditRecord) error
}
