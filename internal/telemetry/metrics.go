package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics.
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	QueriesAnswered    metric.Int64Counter
	IntegrityFailures  metric.Int64Counter
	TokensUsed         metric.Int64Counter
	DocumentsIndexed   metric.Int64Counter
	IndexingDuration   metric.Float64Histogram
	SagaRollbacks      metric.Int64Counter
	AuditEventsLogged  metric.Int64Counter
}

// InitMetrics registers all application metrics on the global meter.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-knowledge-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queriesAnswered, err := meter.Int64Counter(
		"retrieval.queries.total",
		metric.WithDescription("Queries answered, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	integrityFailures, err := meter.Int64Counter(
		"retrieval.integrity.failures",
		metric.WithDescription("Answers with at least one hallucinated citation"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	documentsIndexed, err := meter.Int64Counter(
		"indexing.documents.total",
		metric.WithDescription("Documents indexed, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	indexingDuration, err := meter.Float64Histogram(
		"indexing.duration",
		metric.WithDescription("Per-document indexing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sagaRollbacks, err := meter.Int64Counter(
		"indexing.saga.rollbacks",
		metric.WithDescription("Indexing transactions rolled back"),
	)
	if err != nil {
		return nil, err
	}

	auditEventsLogged, err := meter.Int64Counter(
		"audit.events.logged",
		metric.WithDescription("Total audit events logged"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		QueriesAnswered:   queriesAnswered,
		IntegrityFailures: integrityFailures,
		TokensUsed:        tokensUsed,
		DocumentsIndexed:  documentsIndexed,
		IndexingDuration:  indexingDuration,
		SagaRollbacks:     sagaRollbacks,
		AuditEventsLogged: auditEventsLogged,
	}, nil
}

// RecordRequest records HTTP request metrics.
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}
	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordQuery records one answered query by outcome (answered, no_match,
// rejected, failed).
func (m *Metrics) RecordQuery(outcome string, integrityVerified bool) {
	m.QueriesAnswered.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	if !integrityVerified {
		m.IntegrityFailures.Add(context.Background(), 1)
	}
}

// RecordTokensUsed records Gemini token usage.
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	m.TokensUsed.Add(context.Background(), tokens,
		metric.WithAttributes(attribute.String("gemini.model", model)))
}

// RecordIndexing records one per-document indexing attempt.
func (m *Metrics) RecordIndexing(duration float64, success bool) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.DocumentsIndexed.Add(context.Background(), 1, attrs)
	m.IndexingDuration.Record(context.Background(), duration, attrs)
}

// RecordSagaRollback records one rolled-back indexing transaction.
func (m *Metrics) RecordSagaRollback(reason string) {
	m.SagaRollbacks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordAuditEvent records audit event logging.
func (m *Metrics) RecordAuditEvent(action string) {
	m.AuditEventsLogged.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("audit.action", action)))
}
