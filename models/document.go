package models

import "time"

// Sync status values persisted per document after each indexing attempt.
const (
	SyncStatusSuccess = "SUCCESS"
	SyncStatusFailed  = "FAILED"
	SyncStatusPruned  = "PRUNED"
)

// History event types recorded alongside indexing runs.
const (
	EventIndexed          = "INDEXED"
	EventExtractionFailed = "EXTRACTION_FAILED"
	EventPruned           = "PRUNED"
	EventDeleted          = "DELETED"
)

// SourceFile describes one document as listed by the source connector.
type SourceFile struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	MimeType     string    `json:"mime_type" bson:"mime_type"`
	ModifiedTime time.Time `json:"modified_time" bson:"modified_time"`
	Link         string    `json:"link,omitempty" bson:"link,omitempty"`
	Owners       []string  `json:"owners,omitempty" bson:"owners,omitempty"`
}

// DocumentMetadata is the canonical per-document view derived from the
// first chunk of a document (or an explicit override).
type DocumentMetadata struct {
	DocumentID  string    `json:"document_id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Category    string    `json:"category,omitempty" bson:"category,omitempty"`
	Sensitivity string    `json:"sensitivity" bson:"sensitivity"`
	Department  string    `json:"department" bson:"department"`
	Owner       string    `json:"owner,omitempty" bson:"owner,omitempty"`
	Link        string    `json:"link,omitempty" bson:"link,omitempty"`
	ModifiedAt  time.Time `json:"modified_at,omitempty" bson:"modified_at,omitempty"`
	ChunkCount  int       `json:"chunk_count" bson:"chunk_count"`
}

// MetadataOverride holds sticky per-document fields that survive
// re-indexing. Empty fields are unset and fall through to the next
// precedence level (front matter, then filename heuristic, then default).
type MetadataOverride struct {
	DocumentID  string    `json:"document_id" bson:"_id"`
	Title       string    `json:"title,omitempty" bson:"title,omitempty"`
	Category    string    `json:"category,omitempty" bson:"category,omitempty"`
	Sensitivity string    `json:"sensitivity,omitempty" bson:"sensitivity,omitempty"`
	Department  string    `json:"department,omitempty" bson:"department,omitempty"`
	Owner       string    `json:"owner,omitempty" bson:"owner,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// IsZero reports whether the override sets no field at all.
func (o MetadataOverride) IsZero() bool {
	return o.Title == "" && o.Category == "" && o.Sensitivity == "" &&
		o.Department == "" && o.Owner == ""
}

// SyncStatus is the persisted outcome of the most recent indexing attempt
// for one document. Manual marks documents that were uploaded directly and
// must never be pruned by a full-corpus sync.
type SyncStatus struct {
	DocumentID    string    `json:"document_id" bson:"_id"`
	Status        string    `json:"status" bson:"status"`
	Message       string    `json:"message,omitempty" bson:"message,omitempty"`
	ChunkCount    int       `json:"chunk_count" bson:"chunk_count"`
	TransactionID string    `json:"transaction_id" bson:"transaction_id"`
	Manual        bool      `json:"manual" bson:"manual"`
	LastSync      time.Time `json:"last_sync" bson:"last_sync"`
}

// HistoryEvent records one noteworthy pipeline occurrence (a successful
// index, a degraded extraction, a prune pass).
type HistoryEvent struct {
	ID         string    `json:"id" bson:"_id"`
	Type       string    `json:"type" bson:"type"`
	DocumentID string    `json:"document_id,omitempty" bson:"document_id,omitempty"`
	Message    string    `json:"message" bson:"message"`
	Count      int       `json:"count,omitempty" bson:"count,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
