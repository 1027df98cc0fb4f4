package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rag-knowledge-platform/internal/cache"
	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/models"
)

const embeddingCacheSize = 512

// Canned responses. These are the only answers the orchestrator produces
// without consulting the generator.
const (
	noMatchAnswer = "I couldn't find any documents relevant to your question. " +
		"Try rephrasing it, or check whether the material you're looking for has been indexed."
	noContextAnswer = "I found potentially relevant documents, but none of their content " +
		"could be included in the answer context. Please try a more specific question."
	safetyFallbackAnswer = "I couldn't produce a reliably grounded answer to this question. " +
		"Please consult the source documents directly or rephrase your question."
	tryAgainAnswer = "Something went wrong while answering your question. Please try again."
)

// QueryResponse is the orchestrator's answer envelope. Integrity is always
// populated, even for canned responses.
type QueryResponse struct {
	Answer             string                  `json:"answer"`
	Confidence         string                  `json:"confidence"`
	Citations          []models.Citation       `json:"citations,omitempty"`
	MissingInformation string                  `json:"missing_information,omitempty"`
	Sources            []models.ChunkMetadata  `json:"sources,omitempty"`
	Integrity          models.IntegrityReport  `json:"integrity"`
	Truncated          bool                    `json:"truncated,omitempty"`
	TokensUsed         int                     `json:"tokens_used,omitempty"`
}

// RetrievalOrchestrator runs the query flow: embed, search, gate, budget,
// generate, verify, audit. It never returns an error to its caller; every
// failure mode degrades to a safe response.
type RetrievalOrchestrator struct {
	index     *vectorindex.Index
	embedder  EmbeddingProvider
	generator GenerationProvider
	audit     AuditSink

	embeddingCache *cache.Cache[string, []float32]

	topK              int
	minScore          float64
	maxContextChars   int
	embeddingTimeout  time.Duration
	generationTimeout time.Duration
}

// NewRetrievalOrchestrator wires the orchestrator with its collaborators.
func NewRetrievalOrchestrator(
	index *vectorindex.Index,
	embedder EmbeddingProvider,
	generator GenerationProvider,
	audit AuditSink,
	cfg *config.Config,
) *RetrievalOrchestrator {
	return &RetrievalOrchestrator{
		index:             index,
		embedder:          embedder,
		generator:         generator,
		audit:             audit,
		embeddingCache:    cache.New[string, []float32](embeddingCacheSize, cache.EmbeddingTTL),
		topK:              cfg.TopK,
		minScore:          cfg.MinSimilarityScore,
		maxContextChars:   cfg.MaxContextChars,
		embeddingTimeout:  cfg.EmbeddingTimeout,
		generationTimeout: cfg.GenerationTimeout,
	}
}

// StartCacheJanitor sweeps the embedding cache on the given interval until
// stop is closed.
func (o *RetrievalOrchestrator) StartCacheJanitor(interval time.Duration, stop <-chan struct{}) {
	o.embeddingCache.StartCleanup(interval, stop)
}

// Query answers one question for the given caller. One audit record is
// emitted per call regardless of outcome, and panics are converted into the
// uniform retry response.
func (o *RetrievalOrchestrator) Query(ctx context.Context, query string, profile models.CallerProfile, history []string, requestID string) (resp *QueryResponse) {
	tracer := otel.Tracer("retrieval-orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.query")
	defer span.End()
	span.SetAttributes(
		attribute.String("caller.role", profile.Role),
		attribute.String("caller.department", profile.Department),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("query panic recovered", "user_id", profile.UserID,
				"request_id", requestID, "panic", fmt.Sprint(r))
			o.auditQuery(ctx, profile, query, requestID, models.AuditActionQueryFailed,
				false, fmt.Sprintf("panic: %v", r), nil)
			resp = &QueryResponse{
				Answer:     tryAgainAnswer,
				Confidence: models.ConfidenceLow,
				Integrity:  models.IntegrityReport{Verified: false},
			}
		}
	}()

	filters := vectorindex.Filters{
		Department: profile.Department,
		Role:       vectorindex.NormalizeRole(profile.Role),
	}
	if !filters.Valid() {
		o.auditQuery(ctx, profile, query, requestID, models.AuditActionQueryBlocked,
			false, "missing or unrecognized role/department", nil)
		return &QueryResponse{
			Answer:     noMatchAnswer,
			Confidence: models.ConfidenceLow,
			Integrity:  models.IntegrityReport{Verified: false},
		}
	}

	queryVector, err := o.embedQuery(ctx, query)
	if err != nil {
		return o.failure(ctx, profile, query, requestID, "embed query", err)
	}

	results := o.index.Search(queryVector, o.topK, filters)

	// Relevance gate. Results below the floor would only mislead the
	// generator, so a query with no strong match gets a canned answer.
	// Search may serve results from its cache, so the gate must not
	// write into the returned slice.
	gated := make([]models.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= o.minScore {
			gated = append(gated, r)
		}
	}
	span.SetAttributes(attribute.Int("retrieval.candidates", len(results)),
		attribute.Int("retrieval.gated", len(gated)))
	if len(gated) == 0 {
		o.auditQuery(ctx, profile, query, requestID, models.AuditActionQuery, true, "",
			map[string]interface{}{"result": "no_match", "candidates": len(results)})
		return &QueryResponse{
			Answer:     noMatchAnswer,
			Confidence: models.ConfidenceHigh,
			Integrity:  models.IntegrityReport{Verified: true, Score: 1.0},
		}
	}

	contextBlocks, sources, truncated := o.budgetContext(gated)
	if len(contextBlocks) == 0 {
		o.auditQuery(ctx, profile, query, requestID, models.AuditActionQuery, true, "",
			map[string]interface{}{"result": "empty_context"})
		return &QueryResponse{
			Answer:     noContextAnswer,
			Confidence: models.ConfidenceLow,
			Integrity:  models.IntegrityReport{Verified: true, Score: 1.0},
		}
	}

	answer, tokensUsed, err := o.generate(ctx, query, contextBlocks, profile, history)
	if err != nil {
		return o.failure(ctx, profile, query, requestID, "generate answer", err)
	}

	report := VerifyCitations(answer.Citations, contextBlocks)
	verdict := AnalyzeHallucination(answer, report, contextBlocks)

	auditMeta := map[string]interface{}{
		"result":             "answered",
		"verdict":            verdict,
		"integrity_score":    report.Score,
		"total_citations":    report.TotalCitations,
		"verified_citations": report.VerifiedCitations,
		"context_blocks":     len(contextBlocks),
		"truncated":          truncated,
	}

	if verdict == VerdictReject {
		logger.Warn("answer rejected by hallucination analysis",
			"user_id", profile.UserID, "request_id", requestID,
			"integrity_score", report.Score)
		auditMeta["result"] = "rejected"
		o.auditQuery(ctx, profile, query, requestID, models.AuditActionQuery, true, "", auditMeta)
		return &QueryResponse{
			Answer:     safetyFallbackAnswer,
			Confidence: models.ConfidenceLow,
			Sources:    sources,
			Integrity:  report,
			Truncated:  truncated,
		}
	}

	o.auditQuery(ctx, profile, query, requestID, models.AuditActionQuery, true, "", auditMeta)
	return &QueryResponse{
		Answer:             answer.Answer,
		Confidence:         answer.Confidence,
		Citations:          answer.Citations,
		MissingInformation: answer.MissingInformation,
		Sources:            sources,
		Integrity:          report,
		Truncated:          truncated,
		TokensUsed:         tokensUsed,
	}
}

// embedQuery embeds the query text under its own timeout, with a content
// addressed cache in front of the provider.
func (o *RetrievalOrchestrator) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := embeddingCacheKey(query)
	if vec, ok := o.embeddingCache.Get(key); ok {
		return vec, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.embeddingTimeout)
	defer cancel()

	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrapProviderErr("embed", err)
	}
	o.embeddingCache.Set(key, vec)
	return vec, nil
}

func embeddingCacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(text))))
	return hex.EncodeToString(sum[:])
}

// budgetContext packs gated results into context blocks under the character
// budget. Inclusion is chunk-atomic except for the very first chunk, which
// is truncated rather than dropped so the context is never empty when a
// relevant chunk exists.
func (o *RetrievalOrchestrator) budgetContext(results []models.RetrievalResult) (blocks []string, sources []models.ChunkMetadata, truncated bool) {
	used := 0
	for i, r := range results {
		text := RedactPII(r.Chunk.Text)
		if used+len(text) > o.maxContextChars {
			if i == 0 {
				keep := o.maxContextChars
				if keep > len(text) {
					keep = len(text)
				}
				for keep > 0 && keep < len(text) && !utf8.RuneStart(text[keep]) {
					keep--
				}
				blocks = append(blocks, text[:keep]+" [TRUNCATED]")
				sources = append(sources, r.Chunk.ChunkMetadata)
				truncated = true
			}
			break
		}
		used += len(text)
		blocks = append(blocks, text)
		sources = append(sources, r.Chunk.ChunkMetadata)
	}
	return blocks, sources, truncated
}

// generate calls the provider under its own timeout and parses the
// structured body. A malformed body degrades to the raw text with low
// confidence instead of failing the query.
func (o *RetrievalOrchestrator) generate(ctx context.Context, query string, contextBlocks []string, profile models.CallerProfile, history []string) (models.StructuredAnswer, int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	result, err := o.generator.Generate(ctx, query, contextBlocks, profile, history)
	if err != nil {
		return models.StructuredAnswer{}, 0, wrapProviderErr("generate", err)
	}

	answer, ok := parseStructuredAnswer(result.Text)
	if !ok {
		logger.Warn("generation response not structured, degrading to raw text",
			"user_id", profile.UserID)
		answer = models.StructuredAnswer{
			Answer:     strings.TrimSpace(result.Text),
			Confidence: models.ConfidenceLow,
		}
	}
	return answer, result.TokensUsed, nil
}

// parseStructuredAnswer extracts the JSON body from the generator's text,
// tolerating markdown code fences around it.
func parseStructuredAnswer(text string) (models.StructuredAnswer, bool) {
	trimmed := strings.TrimSpace(text)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}

	var answer models.StructuredAnswer
	if err := json.Unmarshal([]byte(trimmed), &answer); err != nil {
		return models.StructuredAnswer{}, false
	}
	if answer.Answer == "" {
		return models.StructuredAnswer{}, false
	}
	switch answer.Confidence {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		answer.Confidence = models.ConfidenceLow
	}
	return answer, true
}

// failure logs, audits, and converts any step error into the uniform retry
// response.
func (o *RetrievalOrchestrator) failure(ctx context.Context, profile models.CallerProfile, query, requestID, step string, err error) *QueryResponse {
	logger.Error("query failed", "user_id", profile.UserID,
		"request_id", requestID, "step", step, "error", err)
	o.auditQuery(ctx, profile, query, requestID, models.AuditActionQueryFailed,
		false, fmt.Sprintf("%s: %v", step, err), nil)
	return &QueryResponse{
		Answer:     tryAgainAnswer,
		Confidence: models.ConfidenceLow,
		Integrity:  models.IntegrityReport{Verified: false},
	}
}

func (o *RetrievalOrchestrator) auditQuery(ctx context.Context, profile models.CallerProfile, query, requestID, action string, granted bool, errMsg string, meta map[string]interface{}) {
	if o.audit == nil {
		return
	}
	record := models.AuditRecord{
		UserID:       profile.UserID,
		Action:       action,
		Query:        query,
		Granted:      granted,
		RequestID:    requestID,
		ErrorMessage: errMsg,
		Metadata:     meta,
	}
	if err := o.audit.Log(ctx, record); err != nil {
		logger.Warn("audit log failed", "action", action, "error", err)
	}
}
