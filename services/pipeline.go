package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/saga"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/models"
)

// Pipeline states, recorded as saga steps per document.
const (
	StateExtracting       = "extracting"
	StateMetadataResolved = "metadata_resolved"
	StateChunked          = "chunked"
	StateEmbedding        = "embedding"
	StateCommitted        = "committed"
)

// IndexingPipeline converts source documents into embedded chunks and
// commits them to the vector index under a saga. A single atomic flag
// serializes full-corpus syncs against single-document indexing.
type IndexingPipeline struct {
	index     *vectorindex.Index
	embedder  EmbeddingProvider
	connector SourceConnector
	store     MetadataStore
	audit     AuditSink
	resolver  *MetadataResolver
	chunker   *Chunker
	metrics   *telemetry.Metrics

	// syncing is the full-sync exclusivity flag. It is the only global
	// lock in the system; per-document operations otherwise interleave
	// freely because all index keys derive from the document id.
	syncing atomic.Bool

	batchSize        int
	embedConcurrency int
	sourceFolder     string
}

// SyncReport summarizes one full-corpus sync.
type SyncReport struct {
	Listed   int           `json:"listed"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Pruned   int           `json:"pruned"`
	Duration time.Duration `json:"duration"`
}

// NewIndexingPipeline wires the pipeline with its collaborators.
func NewIndexingPipeline(
	index *vectorindex.Index,
	embedder EmbeddingProvider,
	connector SourceConnector,
	store MetadataStore,
	audit AuditSink,
	cfg *config.Config,
) *IndexingPipeline {
	batchSize := cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	concurrency := cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	return &IndexingPipeline{
		index:            index,
		embedder:         embedder,
		connector:        connector,
		store:            store,
		audit:            audit,
		resolver:         NewMetadataResolver(store),
		chunker:          NewChunker(cfg.MaxChunkSize, cfg.MinChunkSize),
		batchSize:        batchSize,
		embedConcurrency: concurrency,
		sourceFolder:     cfg.SourceFolder,
	}
}

// SetMetrics attaches the metric recorders. Optional; recording is a
// no-op until set.
func (p *IndexingPipeline) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

// StartCacheJanitor sweeps the override cache on the given interval until
// stop is closed.
func (p *IndexingPipeline) StartCacheJanitor(interval time.Duration, stop <-chan struct{}) {
	p.resolver.overrideCache.StartCleanup(interval, stop)
}

// Syncing reports whether a full-corpus sync currently holds the
// exclusivity flag.
func (p *IndexingPipeline) Syncing() bool {
	return p.syncing.Load()
}

// IndexDocument indexes one source document. Rejected with
// ErrSyncInProgress while a full sync is running.
func (p *IndexingPipeline) IndexDocument(ctx context.Context, file models.SourceFile) (string, error) {
	if p.syncing.Load() {
		return "", ErrSyncInProgress
	}
	return p.indexOne(ctx, file, nil, false)
}

// IndexUpload indexes a manually uploaded document from its raw content,
// bypassing the connector. Manual documents are never pruned by a sync.
func (p *IndexingPipeline) IndexUpload(ctx context.Context, file models.SourceFile, content []byte) (string, error) {
	if p.syncing.Load() {
		return "", ErrSyncInProgress
	}
	return p.indexOne(ctx, file, content, true)
}

// indexOne runs the per-document state machine:
// Extracting → MetadataResolved → Chunked → Embedding → Committed,
// or RolledBack/Failed on error. preloaded, when non-nil, substitutes for
// the connector export (manual uploads).
func (p *IndexingPipeline) indexOne(ctx context.Context, file models.SourceFile, preloaded []byte, manual bool) (docID string, err error) {
	tracer := otel.Tracer("indexing-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.index_document")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", file.ID),
		attribute.String("document.name", file.Name),
	)

	sg := saga.New("index:" + file.ID)
	existed := p.index.HasDocument(file.ID)
	start := time.Now()

	defer func() {
		if err == nil {
			return
		}
		// New documents get their partial chunks compensated away;
		// existing documents keep their last good state rather than being
		// destroyed by a transient re-index failure.
		if !existed {
			if rbErr := sg.Rollback(ctx); rbErr != nil {
				logger.Error("rollback incomplete", "document_id", file.ID,
					"transaction_id", sg.ID, "error", rbErr)
			}
			if p.metrics != nil {
				p.metrics.RecordSagaRollback("index_document")
			}
		}
		if p.metrics != nil {
			p.metrics.RecordIndexing(time.Since(start).Seconds(), false)
		}
		p.saveStatus(ctx, models.SyncStatus{
			DocumentID:    file.ID,
			Status:        models.SyncStatusFailed,
			Message:       err.Error(),
			TransactionID: sg.ID,
			Manual:        manual,
			LastSync:      time.Now().UTC(),
		})
		err = fmt.Errorf("index document %s: %w", file.ID, err)
	}()

	// Extracting. Failures degrade to a placeholder body instead of
	// aborting, so the document stays discoverable.
	raw, extractErr := p.extract(ctx, file, preloaded)
	if extractErr != nil {
		logger.Warn("extraction failed, indexing placeholder",
			"document_id", file.ID, "transaction_id", sg.ID, "error", extractErr)
		p.recordEvent(ctx, models.HistoryEvent{
			Type:       models.EventExtractionFailed,
			DocumentID: file.ID,
			Message:    extractErr.Error(),
		})
		raw = PlaceholderText(file)
	}
	sg.AddStep(StateExtracting)

	// MetadataResolved.
	meta, body := p.resolver.Resolve(ctx, file, raw)
	sg.AddStep(StateMetadataResolved)

	if snapErr := p.store.SaveSnapshot(ctx, file.ID, []byte(raw)); snapErr != nil {
		logger.Warn("snapshot save failed", "document_id", file.ID, "error", snapErr)
	}

	// Chunked.
	chunks := p.chunker.Split(body)
	if len(chunks) == 0 {
		chunks = []string{PlaceholderText(file)}
	}
	sg.AddStep(StateChunked)
	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))

	// Embedding, batched with bounded concurrency.
	vectors, embedErr := p.embedAll(ctx, chunks)
	if embedErr != nil {
		return "", embedErr
	}
	sg.AddStep(StateEmbedding)

	// Committed, guarded by the delete-all-chunks compensation. The
	// compensation is only registered for documents new to the index.
	if !existed {
		sg.AddCompensation(StateCommitted, func(ctx context.Context) error {
			p.index.DeleteDocument(file.ID)
			return nil
		})
	}

	records := make([]models.Chunk, len(chunks))
	for i, text := range chunks {
		records[i] = models.Chunk{
			ID:            models.ChunkID(file.ID, i),
			DocumentID:    file.ID,
			Ordinal:       i,
			Text:          text,
			Vector:        vectors[i],
			ChunkMetadata: meta,
		}
	}
	if commitErr := sg.Execute(ctx, StateCommitted, func(ctx context.Context) error {
		// Re-indexing with fewer chunks must not leave stale tails behind:
		// replace the document's chunk set wholesale. Chunk ids are
		// deterministic, so matching ids overwrite in place.
		p.index.DeleteDocument(file.ID)
		p.index.Upsert(records)
		return nil
	}); commitErr != nil {
		return "", fmt.Errorf("%w: %v", ErrCommitFailed, commitErr)
	}

	p.saveStatus(ctx, models.SyncStatus{
		DocumentID:    file.ID,
		Status:        models.SyncStatusSuccess,
		ChunkCount:    len(records),
		TransactionID: sg.ID,
		Manual:        manual,
		LastSync:      time.Now().UTC(),
	})
	p.recordEvent(ctx, models.HistoryEvent{
		Type:       models.EventIndexed,
		DocumentID: file.ID,
		Message:    fmt.Sprintf("indexed %d chunks in %s", len(records), time.Since(start).Round(time.Millisecond)),
		Count:      len(records),
	})

	if p.metrics != nil {
		p.metrics.RecordIndexing(time.Since(start).Seconds(), true)
	}
	logger.Info("document indexed",
		"document_id", file.ID, "chunks", len(records),
		"transaction_id", sg.ID, "duration", time.Since(start))
	return file.ID, nil
}

// extract fetches the raw text body via the connector, or uses the
// preloaded content for manual uploads.
func (p *IndexingPipeline) extract(ctx context.Context, file models.SourceFile, preloaded []byte) (string, error) {
	if preloaded != nil {
		return string(preloaded), nil
	}
	data, err := p.connector.Export(ctx, file.ID)
	if err != nil {
		return "", wrapProviderErr("export", fmt.Errorf("%w: %v", ErrExtractionFailed, err))
	}
	return string(data), nil
}

// embedAll embeds chunks in batches of batchSize with at most
// embedConcurrency in-flight calls per batch. Results are reassembled by
// chunk index, so the committed order matches chunk order regardless of
// completion order.
func (p *IndexingPipeline) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	for batchStart := 0; batchStart < len(chunks); batchStart += p.batchSize {
		batchEnd := batchStart + p.batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.embedConcurrency)
		for i := batchStart; i < batchEnd; i++ {
			g.Go(func() error {
				vec, err := p.embedder.Embed(gctx, chunks[i])
				if err != nil {
					return wrapProviderErr("embed", err)
				}
				vectors[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// FullSync lists the whole source, indexes every document independently,
// then prunes indexed documents that disappeared from the source. One
// document failing does not abort the batch. Holds the exclusivity flag
// for its whole duration.
func (p *IndexingPipeline) FullSync(ctx context.Context) (*SyncReport, error) {
	if !p.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer p.syncing.Store(false)

	tracer := otel.Tracer("indexing-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.full_sync")
	defer span.End()

	start := time.Now()
	files, err := p.connector.List(ctx, p.sourceFolder)
	if err != nil {
		return nil, wrapProviderErr("list source documents", err)
	}

	report := &SyncReport{Listed: len(files)}
	sourceIDs := make(map[string]bool, len(files))

	for _, file := range files {
		sourceIDs[file.ID] = true
		if _, err := p.indexOne(ctx, file, nil, false); err != nil {
			report.Failed++
			logger.Error("sync: document skipped", "document_id", file.ID, "error", err)
			continue
		}
		report.Indexed++
	}

	report.Pruned = p.prune(ctx, sourceIDs)
	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("sync.indexed", report.Indexed),
		attribute.Int("sync.failed", report.Failed),
		attribute.Int("sync.pruned", report.Pruned),
	)

	logger.Info("full sync complete",
		"listed", report.Listed, "indexed", report.Indexed,
		"failed", report.Failed, "pruned", report.Pruned,
		"duration", report.Duration)
	return report, nil
}

// prune removes indexed documents that are neither manual uploads nor
// present in the current source listing, and records one PRUNED event
// summarizing the pass. Manual uploads are identified through the sync
// status store; if that listing fails the whole pass is skipped, since
// pruning without it could destroy manual uploads.
func (p *IndexingPipeline) prune(ctx context.Context, sourceIDs map[string]bool) int {
	statuses, err := p.store.ListSyncStatuses(ctx)
	if err != nil {
		logger.Warn("sync status listing failed, skipping prune pass", "error", err)
		return 0
	}
	manual := make(map[string]bool)
	for _, s := range statuses {
		if s.Manual {
			manual[s.DocumentID] = true
		}
	}

	pruned := 0
	for _, docID := range p.index.DocumentIDs() {
		if sourceIDs[docID] || manual[docID] {
			continue
		}
		p.index.DeleteDocument(docID)
		p.saveStatus(ctx, models.SyncStatus{
			DocumentID: docID,
			Status:     models.SyncStatusPruned,
			Message:    "absent from source listing",
			LastSync:   time.Now().UTC(),
		})
		pruned++
	}

	if pruned > 0 {
		p.recordEvent(ctx, models.HistoryEvent{
			Type:    models.EventPruned,
			Message: fmt.Sprintf("pruned %d orphaned documents", pruned),
			Count:   pruned,
		})
	}
	return pruned
}

// DeleteDocument removes a document everywhere: index, override, sync
// status, and override cache. The matching audit event is recorded.
func (p *IndexingPipeline) DeleteDocument(ctx context.Context, documentID, requestedBy string) error {
	removed := p.index.DeleteDocument(documentID)

	if err := p.store.RemoveOverride(ctx, documentID); err != nil {
		logger.Warn("override removal failed", "document_id", documentID, "error", err)
	}
	if err := p.store.RemoveSyncStatus(ctx, documentID); err != nil {
		logger.Warn("sync status removal failed", "document_id", documentID, "error", err)
	}
	p.resolver.InvalidateOverride(documentID)

	p.auditEvent(ctx, models.AuditRecord{
		UserID:  requestedBy,
		Action:  models.AuditActionDelete,
		Granted: true,
		Metadata: map[string]interface{}{
			"document_id":    documentID,
			"chunks_removed": removed,
		},
	})
	p.recordEvent(ctx, models.HistoryEvent{
		Type:       models.EventDeleted,
		DocumentID: documentID,
		Message:    fmt.Sprintf("removed %d chunks", removed),
		Count:      removed,
	})
	return nil
}

// SetOverride stores a sticky metadata override and drops the cached copy
// so the next resolution sees it.
func (p *IndexingPipeline) SetOverride(ctx context.Context, override models.MetadataOverride) error {
	override.UpdatedAt = time.Now().UTC()
	if err := p.store.SetOverride(ctx, override); err != nil {
		return fmt.Errorf("set override %s: %w", override.DocumentID, err)
	}
	p.resolver.InvalidateOverride(override.DocumentID)
	return nil
}

func (p *IndexingPipeline) saveStatus(ctx context.Context, status models.SyncStatus) {
	if err := p.store.SaveSyncStatus(ctx, status); err != nil {
		logger.Error("sync status save failed",
			"document_id", status.DocumentID, "status", status.Status, "error", err)
	}
}

func (p *IndexingPipeline) recordEvent(ctx context.Context, event models.HistoryEvent) {
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	if err := p.store.AddHistoryEvent(ctx, event); err != nil {
		logger.Warn("history event save failed", "type", event.Type, "error", err)
	}
}

func (p *IndexingPipeline) auditEvent(ctx context.Context, record models.AuditRecord) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Log(ctx, record); err != nil {
		logger.Warn("audit log failed", "action", record.Action, "error", err)
	}
}
