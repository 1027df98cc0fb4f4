package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-knowledge-platform/models"
)

func TestResolveDefaults(t *testing.T) {
	r := NewMetadataResolver(newMemStore())

	file := models.SourceFile{
		ID:       "docs/notes.txt",
		Name:     "notes.txt",
		MimeType: "text/plain",
		Owners:   []string{"sam@example.com"},
	}
	meta, body := r.Resolve(context.Background(), file, "Plain body with no front matter.")

	assert.Equal(t, "notes", meta.Title)
	assert.Equal(t, models.SensitivityInternal, meta.Sensitivity)
	assert.Equal(t, models.DefaultDepartment, meta.Department)
	assert.Equal(t, "sam@example.com", meta.Owner)
	assert.Equal(t, "Plain body with no front matter.", body)
}

func TestResolveFrontMatterBeatsFilenameHeuristic(t *testing.T) {
	r := NewMetadataResolver(newMemStore())

	raw := "---\n" +
		"title: Quarterly Budget Review\n" +
		"department: Finance\n" +
		"sensitivity: confidential\n" +
		"---\n" +
		"The actual document body."

	// The filename alone maps to Human Resources.
	file := models.SourceFile{ID: "docs/hr-overview.md", Name: "hr-overview.md"}
	meta, body := r.Resolve(context.Background(), file, raw)

	assert.Equal(t, "Quarterly Budget Review", meta.Title)
	assert.Equal(t, "Finance", meta.Department)
	assert.Equal(t, models.SensitivityConfidential, meta.Sensitivity)
	assert.Equal(t, "The actual document body.", body)
}

func TestResolveOverrideBeatsEverything(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SetOverride(context.Background(), models.MetadataOverride{
		DocumentID:  "docs/hr-overview.md",
		Department:  "Legal",
		Sensitivity: "restricted",
	}))
	r := NewMetadataResolver(store)

	raw := "---\ndepartment: Finance\n---\nBody."
	file := models.SourceFile{ID: "docs/hr-overview.md", Name: "hr-overview.md"}
	meta, _ := r.Resolve(context.Background(), file, raw)

	assert.Equal(t, "Legal", meta.Department)
	assert.Equal(t, models.SensitivityRestricted, meta.Sensitivity)
	// Unset override fields fall through to the lower levels.
	assert.Equal(t, "hr-overview", meta.Title)
}

func TestOverrideLookupsAreCached(t *testing.T) {
	store := newMemStore()
	r := NewMetadataResolver(store)
	file := models.SourceFile{ID: "docs/a.txt", Name: "a.txt"}

	r.Resolve(context.Background(), file, "body")
	r.Resolve(context.Background(), file, "body")
	// The miss is cached as a negative entry.
	assert.Equal(t, 1, store.overrideLookups)

	r.InvalidateOverride(file.ID)
	r.Resolve(context.Background(), file, "body")
	assert.Equal(t, 2, store.overrideLookups)
}

func TestOverrideLookupFailureFallsThrough(t *testing.T) {
	store := newMemStore()
	store.overrideErr = assert.AnError
	r := NewMetadataResolver(store)

	meta, _ := r.Resolve(context.Background(), models.SourceFile{ID: "x", Name: "x.txt"}, "body")
	assert.Equal(t, models.DefaultDepartment, meta.Department)
}

func TestParseFrontMatter(t *testing.T) {
	fields, body := ParseFrontMatter("---\ntitle: Hello\nowner: \"Pat\"\nempty:\n---\nThe body.")
	require.NotNil(t, fields)
	assert.Equal(t, "Hello", fields["title"])
	assert.Equal(t, "Pat", fields["owner"])
	assert.NotContains(t, fields, "empty")
	assert.Equal(t, "The body.", body)
}

func TestParseFrontMatterAbsent(t *testing.T) {
	fields, body := ParseFrontMatter("Just a document. --- with a stray marker.")
	assert.Nil(t, fields)
	assert.Equal(t, "Just a document. --- with a stray marker.", body)
}

func TestParseFrontMatterUnterminated(t *testing.T) {
	text := "---\ntitle: Broken\nno closing marker"
	fields, body := ParseFrontMatter(text)
	assert.Nil(t, fields)
	assert.Equal(t, text, body)
}

func TestDepartmentFromFilename(t *testing.T) {
	cases := map[string]string{
		"hr-onboarding-guide.md": "Human Resources",
		"budget_2026.txt":        "Finance",
		"runbook-deploys.md":     "Engineering",
		"brand guidelines.pdf":   "Marketing",
		"vendor contract.pdf":    "Legal",
		"it-assets.txt":          "IT",
		"random notes.txt":       models.DefaultDepartment,
		// Whole-token matching: "audit" must not match the "it" keyword.
		"audit.pdf": models.DefaultDepartment,
	}
	for name, want := range cases {
		assert.Equal(t, want, departmentFromFilename(name), name)
	}
}

func TestPlaceholderText(t *testing.T) {
	modified := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	text := PlaceholderText(models.SourceFile{
		Name:         "report.pdf",
		MimeType:     "application/pdf",
		ModifiedTime: modified,
	})

	assert.Contains(t, text, "report.pdf")
	assert.Contains(t, text, "application/pdf")
	assert.Contains(t, text, "2026-03-14T09:00:00Z")
}
