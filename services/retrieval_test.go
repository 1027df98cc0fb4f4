package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/models"
)

type retrievalRig struct {
	orchestrator *RetrievalOrchestrator
	index        *vectorindex.Index
	embedder     *fakeEmbedder
	generator    *fakeGenerator
	audit        *fakeAudit
}

func newRetrievalRig(cfg *config.Config) *retrievalRig {
	rig := &retrievalRig{
		index:     vectorindex.New(),
		embedder:  &fakeEmbedder{vec: []float32{1, 0, 0}},
		generator: &fakeGenerator{},
		audit:     &fakeAudit{},
	}
	rig.orchestrator = NewRetrievalOrchestrator(rig.index, rig.embedder,
		rig.generator, rig.audit, cfg)
	return rig
}

func (rig *retrievalRig) addChunk(id, text string, vector []float32) {
	rig.index.Upsert([]models.Chunk{{
		ID:         id + "_0",
		DocumentID: id,
		Ordinal:    0,
		Text:       text,
		Vector:     vector,
		ChunkMetadata: models.ChunkMetadata{
			Title:       id,
			Sensitivity: models.SensitivityInternal,
			Department:  models.DefaultDepartment,
		},
	}})
}

func viewerProfile() models.CallerProfile {
	return models.CallerProfile{
		UserID:     "u1",
		Name:       "Sam",
		Role:       models.RoleViewer,
		Department: "Engineering",
	}
}

func TestQueryFailsClosedWithoutRole(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	profile := viewerProfile()
	profile.Role = ""

	resp := rig.orchestrator.Query(context.Background(), "anything", profile, nil, "req-1")

	assert.Equal(t, noMatchAnswer, resp.Answer)
	assert.False(t, resp.Integrity.Verified)
	require.Len(t, rig.audit.byAction(models.AuditActionQueryBlocked), 1)
	assert.Equal(t, 1, rig.audit.count())
	// The index is never consulted and the generator never called.
	assert.Zero(t, rig.embedder.calls.Load())
	assert.Empty(t, rig.generator.received)
}

func TestQueryNoMatchBelowRelevanceGate(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	// cos(query, chunk) ~= 0.447, under the 0.60 floor.
	rig.addChunk("docs/offtopic.md", "Entirely unrelated content.", []float32{1, 2, 0})

	resp := rig.orchestrator.Query(context.Background(), "refund policy", viewerProfile(), nil, "req-1")

	assert.Equal(t, noMatchAnswer, resp.Answer)
	assert.Equal(t, models.ConfidenceHigh, resp.Confidence)
	assert.True(t, resp.Integrity.Verified)
	assert.Empty(t, rig.generator.received)

	records := rig.audit.byAction(models.AuditActionQuery)
	require.Len(t, records, 1)
	assert.True(t, records[0].Granted)
	assert.Equal(t, "no_match", records[0].Metadata["result"])
}

func TestQueryAnswersWithVerifiedCitations(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/policy.md",
		"Refunds are issued within 30 days of purchase, no questions asked.",
		[]float32{1, 0, 0})
	rig.generator.text = `{"answer":"Refunds are issued within 30 days.","confidence":"High",` +
		`"citations":[{"quote":"Refunds are issued within 30 days","source":"docs/policy.md"}],` +
		`"missing_information":""}`
	rig.generator.tokens = 42

	resp := rig.orchestrator.Query(context.Background(), "refund policy", viewerProfile(), nil, "req-1")

	assert.Equal(t, "Refunds are issued within 30 days.", resp.Answer)
	assert.Equal(t, models.ConfidenceHigh, resp.Confidence)
	require.Len(t, resp.Citations, 1)
	assert.True(t, resp.Integrity.Verified)
	assert.Equal(t, 1.0, resp.Integrity.Score)
	assert.Equal(t, 42, resp.TokensUsed)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "docs/policy.md", resp.Sources[0].Title)
	assert.Equal(t, 1, rig.audit.count())
}

func TestQueryParsesFencedJSON(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/a.md", "The deploy window opens at noon.", []float32{1, 0, 0})
	rig.generator.text = "```json\n" +
		`{"answer":"The deploy window opens at noon.","confidence":"Medium","citations":[]}` +
		"\n```"

	resp := rig.orchestrator.Query(context.Background(), "deploy window", viewerProfile(), nil, "req-1")

	assert.Equal(t, "The deploy window opens at noon.", resp.Answer)
	assert.Equal(t, models.ConfidenceMedium, resp.Confidence)
}

func TestQueryDegradesOnUnstructuredResponse(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/a.md", "Some indexed content here.", []float32{1, 0, 0})
	rig.generator.text = "Just plain prose with no JSON anywhere."

	resp := rig.orchestrator.Query(context.Background(), "question", viewerProfile(), nil, "req-1")

	assert.Equal(t, "Just plain prose with no JSON anywhere.", resp.Answer)
	assert.Equal(t, models.ConfidenceLow, resp.Confidence)
	assert.Empty(t, resp.Citations)
}

func TestQueryRejectsFabricatedAnswer(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/a.md", "The office opens at nine in the morning.", []float32{1, 0, 0})
	rig.generator.text = `{"answer":"Completely invented claims.","confidence":"High",` +
		`"citations":[{"quote":"the office never opens on weekdays"},` +
		`{"quote":"entry requires biometric clearance"}]}`

	resp := rig.orchestrator.Query(context.Background(), "office hours", viewerProfile(), nil, "req-1")

	assert.Equal(t, safetyFallbackAnswer, resp.Answer)
	assert.Equal(t, models.ConfidenceLow, resp.Confidence)
	assert.False(t, resp.Integrity.Verified)
	assert.Equal(t, 2, resp.Integrity.HallucinatedQuoteCount)

	records := rig.audit.byAction(models.AuditActionQuery)
	require.Len(t, records, 1)
	assert.Equal(t, "rejected", records[0].Metadata["result"])
}

func TestQueryGeneratorFailureReturnsRetryAnswer(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/a.md", "Some indexed content here.", []float32{1, 0, 0})
	rig.generator.err = errors.New("model unavailable")

	resp := rig.orchestrator.Query(context.Background(), "question", viewerProfile(), nil, "req-1")

	assert.Equal(t, tryAgainAnswer, resp.Answer)
	require.Len(t, rig.audit.byAction(models.AuditActionQueryFailed), 1)
	assert.Equal(t, 1, rig.audit.count())
}

func TestQueryRecoversFromPanic(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/a.md", "content", []float32{1, 0, 0})
	rig.embedder.fn = func(string) ([]float32, error) { panic("embedder broke") }

	resp := rig.orchestrator.Query(context.Background(), "question", viewerProfile(), nil, "req-1")

	assert.Equal(t, tryAgainAnswer, resp.Answer)
	records := rig.audit.byAction(models.AuditActionQueryFailed)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].ErrorMessage, "panic")
}

func TestQueryTruncatesFirstChunkInsteadOfDroppingIt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextChars = 40
	rig := newRetrievalRig(cfg)
	rig.addChunk("docs/big.md", strings.Repeat("All work and no play. ", 10), []float32{1, 0, 0})
	rig.generator.text = `{"answer":"ok","confidence":"Low"}`

	resp := rig.orchestrator.Query(context.Background(), "question", viewerProfile(), nil, "req-1")

	assert.True(t, resp.Truncated)
	require.Len(t, resp.Sources, 1)
	blocks := rig.generator.lastContext()
	require.Len(t, blocks, 1)
	assert.True(t, strings.HasSuffix(blocks[0], "[TRUNCATED]"))
	assert.LessOrEqual(t, len(blocks[0]), 40+len(" [TRUNCATED]"))
}

func TestQueryLeavesCachedSearchResultsIntact(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/strong.md", "A strongly matching chunk.", []float32{1, 0, 0})
	rig.addChunk("docs/weak.md", "A weakly matching chunk.", []float32{1, 2, 0})
	rig.generator.text = `{"answer":"ok","confidence":"Low"}`

	// Prime the search cache with the same lookup the query performs.
	filters := vectorindex.Filters{Department: "Engineering", Role: models.RoleViewer}
	before := rig.index.Search([]float32{1, 0, 0}, testConfig().TopK, filters)
	require.Len(t, before, 2)
	snapshot := append([]models.RetrievalResult(nil), before...)

	rig.orchestrator.Query(context.Background(), "question", viewerProfile(), nil, "req-1")

	// The relevance gate filters a cached slice; it must not write into it.
	after := rig.index.Search([]float32{1, 0, 0}, testConfig().TopK, filters)
	assert.Equal(t, snapshot, after)
}

func TestQueryTruncatesOnRuneBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextChars = 10
	rig := newRetrievalRig(cfg)
	// Three-byte runes guarantee the byte budget lands mid-rune.
	rig.addChunk("docs/unicode.md", strings.Repeat("€", 20), []float32{1, 0, 0})
	rig.generator.text = `{"answer":"ok","confidence":"Low"}`

	resp := rig.orchestrator.Query(context.Background(), "question", viewerProfile(), nil, "req-1")

	assert.True(t, resp.Truncated)
	blocks := rig.generator.lastContext()
	require.Len(t, blocks, 1)
	assert.True(t, utf8.ValidString(blocks[0]))
	assert.True(t, strings.HasSuffix(blocks[0], "[TRUNCATED]"))
}

func TestQueryRedactsPIIFromContext(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/people.md",
		"Escalations go to oncall@example.com during business hours.",
		[]float32{1, 0, 0})
	rig.generator.text = `{"answer":"Use the escalation alias.","confidence":"Medium"}`

	rig.orchestrator.Query(context.Background(), "who do I escalate to", viewerProfile(), nil, "req-1")

	blocks := rig.generator.lastContext()
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], "[EMAIL REDACTED]")
	assert.NotContains(t, blocks[0], "oncall@example.com")
}

func TestQueryHonorsClearanceAndDepartment(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.index.Upsert([]models.Chunk{{
		ID:         "doc1_0",
		DocumentID: "doc1",
		Text:       "Internal architecture review notes.",
		Vector:     []float32{1, 0, 0},
		ChunkMetadata: models.ChunkMetadata{
			Title:       "doc1",
			Sensitivity: models.SensitivityConfidential,
			Department:  "Engineering",
		},
	}})
	rig.generator.text = `{"answer":"The review notes cover the architecture.","confidence":"Medium"}`

	// A viewer from another department is blocked by both clearance and
	// department scoping.
	blocked := models.CallerProfile{UserID: "u2", Role: models.RoleViewer, Department: "Marketing"}
	resp := rig.orchestrator.Query(context.Background(), "architecture review", blocked, nil, "req-1")
	assert.Equal(t, noMatchAnswer, resp.Answer)
	assert.Empty(t, rig.generator.received)

	admin := models.CallerProfile{UserID: "u3", Role: models.RoleAdmin, Department: "IT"}
	resp = rig.orchestrator.Query(context.Background(), "architecture review", admin, nil, "req-2")
	assert.Equal(t, "The review notes cover the architecture.", resp.Answer)
	require.Len(t, resp.Sources, 1)
}

func TestQueryEmbeddingIsCached(t *testing.T) {
	rig := newRetrievalRig(testConfig())
	rig.addChunk("docs/a.md", "Some indexed content here.", []float32{1, 0, 0})
	rig.generator.text = `{"answer":"ok","confidence":"Low"}`

	rig.orchestrator.Query(context.Background(), "Same Question", viewerProfile(), nil, "req-1")
	rig.orchestrator.Query(context.Background(), "  same question  ", viewerProfile(), nil, "req-2")

	// Keyed on normalized content, so the second call is a cache hit.
	assert.Equal(t, int32(1), rig.embedder.calls.Load())
}
