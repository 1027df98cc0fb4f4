package models

import (
	"fmt"
	"time"
)

// Sensitivity levels, ordered from least to most restricted.
const (
	SensitivityPublic       = "PUBLIC"
	SensitivityInternal     = "INTERNAL"
	SensitivityConfidential = "CONFIDENTIAL"
	SensitivityRestricted   = "RESTRICTED"
	SensitivityExecutive    = "EXECUTIVE"
)

// Canonical role tokens. Legacy aliases ("user", "IC") normalize to RoleViewer.
const (
	RoleViewer  = "VIEWER"
	RoleEditor  = "EDITOR"
	RoleManager = "MANAGER"
	RoleAdmin   = "ADMIN"
)

// DefaultDepartment is visible to callers from any department.
const DefaultDepartment = "General"

// ChunkMetadata carries the document-level fields denormalized onto every
// chunk. Extra is a passthrough for provider-specific values and is never
// interpreted by the core.
type ChunkMetadata struct {
	Title       string            `json:"title" bson:"title"`
	Link        string            `json:"link,omitempty" bson:"link,omitempty"`
	Sensitivity string            `json:"sensitivity" bson:"sensitivity"`
	Department  string            `json:"department" bson:"department"`
	Category    string            `json:"category,omitempty" bson:"category,omitempty"`
	Owner       string            `json:"owner,omitempty" bson:"owner,omitempty"`
	ModifiedAt  time.Time         `json:"modified_at,omitempty" bson:"modified_at,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" bson:"extra,omitempty"`
}

// Chunk is the atomic unit stored and searched by the vector index.
// The ID is deterministic (documentID + ordinal) so re-indexing a document
// overwrites its previous chunks instead of accumulating duplicates.
type Chunk struct {
	ID         string    `json:"id" bson:"_id"`
	DocumentID string    `json:"document_id" bson:"document_id"`
	Ordinal    int       `json:"ordinal" bson:"ordinal"`
	Text       string    `json:"text" bson:"text"`
	Vector     []float32 `json:"vector,omitempty" bson:"vector,omitempty"`
	ChunkMetadata `bson:",inline"`
}

// ChunkID builds the deterministic chunk identifier.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", documentID, ordinal)
}

// RetrievalResult pairs a chunk with its cosine similarity score in [-1, 1].
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// CallerProfile identifies the user a search or query is executed for.
// Role and Department are mandatory for any index read: the index fails
// closed when either is missing.
type CallerProfile struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role"`
	Department string `json:"department"`
}
