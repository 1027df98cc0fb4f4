package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/models"
)

// testConfig returns a small, deterministic configuration for pipeline and
// orchestrator tests.
func testConfig() *config.Config {
	return &config.Config{
		MaxChunkSize:       200,
		MinChunkSize:       20,
		TopK:               10,
		MinSimilarityScore: 0.60,
		MaxContextChars:    12000,
		EmbedBatchSize:     5,
		EmbedConcurrency:   3,
		EmbeddingTimeout:   5 * time.Second,
		GenerationTimeout:  5 * time.Second,
	}
}

// memStore is an in-memory MetadataStore with call counters.
type memStore struct {
	mu        sync.Mutex
	overrides map[string]models.MetadataOverride
	statuses  map[string]models.SyncStatus
	snapshots map[string][]byte
	events    []models.HistoryEvent

	overrideLookups int
	overrideErr     error
	listStatusesErr error
}

func newMemStore() *memStore {
	return &memStore{
		overrides: make(map[string]models.MetadataOverride),
		statuses:  make(map[string]models.SyncStatus),
		snapshots: make(map[string][]byte),
	}
}

func (s *memStore) GetOverride(_ context.Context, documentID string) (*models.MetadataOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrideLookups++
	if s.overrideErr != nil {
		return nil, s.overrideErr
	}
	if o, ok := s.overrides[documentID]; ok {
		return &o, nil
	}
	return nil, nil
}

func (s *memStore) SetOverride(_ context.Context, override models.MetadataOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[override.DocumentID] = override
	return nil
}

func (s *memStore) RemoveOverride(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, documentID)
	return nil
}

func (s *memStore) SaveSyncStatus(_ context.Context, status models.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.DocumentID] = status
	return nil
}

func (s *memStore) GetSyncStatus(_ context.Context, documentID string) (*models.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[documentID]; ok {
		return &st, nil
	}
	return nil, nil
}

func (s *memStore) ListSyncStatuses(_ context.Context) ([]models.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listStatusesErr != nil {
		return nil, s.listStatusesErr
	}
	out := make([]models.SyncStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st)
	}
	return out, nil
}

func (s *memStore) RemoveSyncStatus(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, documentID)
	return nil
}

func (s *memStore) SaveSnapshot(_ context.Context, documentID string, text []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[documentID] = append([]byte(nil), text...)
	return nil
}

func (s *memStore) GetSnapshot(_ context.Context, documentID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snapshots[documentID]; ok {
		return snap, nil
	}
	return nil, nil
}

func (s *memStore) AddHistoryEvent(_ context.Context, event models.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) CheckHealth(context.Context) error { return nil }

func (s *memStore) status(documentID string) (models.SyncStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[documentID]
	return st, ok
}

func (s *memStore) eventsOfType(eventType string) []models.HistoryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.HistoryEvent
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeEmbedder returns a fixed vector, or delegates to fn when set.
type fakeEmbedder struct {
	vec   []float32
	err   error
	fn    func(text string) ([]float32, error)
	calls atomic.Int32
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fn != nil {
		return e.fn(text)
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

// fakeConnector serves documents from in-memory content.
type fakeConnector struct {
	mu       sync.Mutex
	files    []models.SourceFile
	content  map[string][]byte
	failIDs  map[string]bool
	listErr  error
	listWait time.Duration
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		content: make(map[string][]byte),
		failIDs: make(map[string]bool),
	}
}

func (c *fakeConnector) add(file models.SourceFile, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, file)
	c.content[file.ID] = []byte(body)
}

func (c *fakeConnector) List(_ context.Context, _ string) ([]models.SourceFile, error) {
	if c.listWait > 0 {
		time.Sleep(c.listWait)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]models.SourceFile(nil), c.files...), nil
}

func (c *fakeConnector) Export(_ context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIDs[id] {
		return nil, errors.New("export refused")
	}
	body, ok := c.content[id]
	if !ok {
		return nil, errors.New("no such document")
	}
	return body, nil
}

func (c *fakeConnector) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.content, id)
	return nil
}

func (c *fakeConnector) Rename(context.Context, string, string) error { return nil }

// fakeGenerator returns a canned response and records the context blocks it
// was handed.
type fakeGenerator struct {
	mu       sync.Mutex
	text     string
	tokens   int
	err      error
	received [][]string
}

func (g *fakeGenerator) Generate(_ context.Context, _ string, contextBlocks []string, _ models.CallerProfile, _ []string) (*models.GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.received = append(g.received, append([]string(nil), contextBlocks...))
	if g.err != nil {
		return nil, g.err
	}
	return &models.GenerationResult{Text: g.text, TokensUsed: g.tokens}, nil
}

func (g *fakeGenerator) lastContext() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.received) == 0 {
		return nil
	}
	return g.received[len(g.received)-1]
}

// fakeAudit collects audit records.
type fakeAudit struct {
	mu      sync.Mutex
	records []models.AuditRecord
	err     error
}

func (a *fakeAudit) Log(_ context.Context, record models.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, record)
	return nil
}

func (a *fakeAudit) byAction(action string) []models.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditRecord
	for _, r := range a.records {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

func (a *fakeAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}
