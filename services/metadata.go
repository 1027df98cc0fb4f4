package services

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"rag-knowledge-platform/internal/cache"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"
)

// overrideCacheSize bounds the metadata override cache.
const overrideCacheSize = 512

// departmentKeywords maps filename tokens to departments, the final
// fallback when neither an override nor front matter names one. Checked in
// order; the first token match wins.
var departmentKeywords = []struct {
	keyword    string
	department string
}{
	{"hr", "Human Resources"},
	{"people", "Human Resources"},
	{"onboarding", "Human Resources"},
	{"finance", "Finance"},
	{"budget", "Finance"},
	{"invoice", "Finance"},
	{"payroll", "Finance"},
	{"engineering", "Engineering"},
	{"eng", "Engineering"},
	{"runbook", "Engineering"},
	{"architecture", "Engineering"},
	{"marketing", "Marketing"},
	{"campaign", "Marketing"},
	{"brand", "Marketing"},
	{"legal", "Legal"},
	{"contract", "Legal"},
	{"policy", "Legal"},
	{"it", "IT"},
	{"infra", "IT"},
	{"security", "IT"},
}

// MetadataResolver resolves the canonical metadata for a document with the
// precedence: explicit override > extracted front matter > filename
// heuristic > default. Overrides are cached for a few minutes.
type MetadataResolver struct {
	store         MetadataStore
	overrideCache *cache.Cache[string, models.MetadataOverride]
}

// NewMetadataResolver creates a resolver over the given store.
func NewMetadataResolver(store MetadataStore) *MetadataResolver {
	return &MetadataResolver{
		store:         store,
		overrideCache: cache.New[string, models.MetadataOverride](overrideCacheSize, cache.MetadataTTL),
	}
}

// Resolve merges all metadata sources for a document and returns the
// resolved metadata plus the body text with any front matter stripped.
func (r *MetadataResolver) Resolve(ctx context.Context, file models.SourceFile, rawText string) (models.ChunkMetadata, string) {
	front, body := ParseFrontMatter(rawText)

	meta := models.ChunkMetadata{
		Title:       strings.TrimSuffix(file.Name, filepath.Ext(file.Name)),
		Link:        file.Link,
		Sensitivity: models.SensitivityInternal,
		Department:  departmentFromFilename(file.Name),
		ModifiedAt:  file.ModifiedTime,
	}
	if len(file.Owners) > 0 {
		meta.Owner = file.Owners[0]
	}

	// Front matter beats the filename heuristic and defaults.
	applyIfSet(&meta.Title, front["title"])
	applyIfSet(&meta.Category, front["category"])
	applyIfSet(&meta.Sensitivity, normalizeLabel(front["sensitivity"]))
	applyIfSet(&meta.Department, front["department"])
	applyIfSet(&meta.Owner, front["owner"])

	// Sticky overrides beat everything. They survive re-indexing.
	if override := r.override(ctx, file.ID); override != nil {
		applyIfSet(&meta.Title, override.Title)
		applyIfSet(&meta.Category, override.Category)
		applyIfSet(&meta.Sensitivity, normalizeLabel(override.Sensitivity))
		applyIfSet(&meta.Department, override.Department)
		applyIfSet(&meta.Owner, override.Owner)
	}

	return meta, body
}

// InvalidateOverride drops the cached override after an edit or delete.
func (r *MetadataResolver) InvalidateOverride(documentID string) {
	r.overrideCache.Delete(documentID)
}

func (r *MetadataResolver) override(ctx context.Context, documentID string) *models.MetadataOverride {
	if cached, ok := r.overrideCache.Get(documentID); ok {
		if cached.IsZero() {
			return nil
		}
		return &cached
	}

	override, err := r.store.GetOverride(ctx, documentID)
	if err != nil {
		logger.Warn("override lookup failed, using extracted metadata",
			"document_id", documentID, "error", err)
		return nil
	}
	if override == nil {
		// Negative entry: avoid re-querying for documents without overrides.
		r.overrideCache.Set(documentID, models.MetadataOverride{DocumentID: documentID})
		return nil
	}
	r.overrideCache.Set(documentID, *override)
	return override
}

// ParseFrontMatter extracts "key: value" lines between leading --- markers
// and returns them with the remaining body. Text without front matter is
// returned unchanged.
func ParseFrontMatter(text string) (map[string]string, string) {
	trimmed := strings.TrimLeft(text, "\r\n \t")
	if !strings.HasPrefix(trimmed, "---") {
		return nil, text
	}

	rest := trimmed[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return nil, text
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(rest[:end], "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key != "" && value != "" {
			fields[key] = value
		}
	}
	body := strings.TrimLeft(rest[end+3:], "\r\n")
	return fields, body
}

// departmentFromFilename maps filename tokens to a department, defaulting
// to General. Tokens are whole words so "audit.pdf" does not match "it".
func departmentFromFilename(name string) string {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}
	for _, kw := range departmentKeywords {
		if present[kw.keyword] {
			return kw.department
		}
	}
	return models.DefaultDepartment
}

func applyIfSet(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func normalizeLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// PlaceholderText is the degraded body used when extraction fails, keeping
// the document discoverable by title and type.
func PlaceholderText(file models.SourceFile) string {
	return "Document: " + file.Name + " (" + file.MimeType + "). Content could not be extracted; last modified " +
		file.ModifiedTime.Format(time.RFC3339) + "."
}
