package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				sums[m.Name] += dp.Value
			}
		}
	}
	return sums
}

func TestRecordersEmitCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	m, err := InitMetrics()
	require.NoError(t, err)

	m.RecordQuery("answered", true)
	m.RecordQuery("rejected", false)
	m.RecordTokensUsed(120, "gemini-1.5-flash")
	m.RecordIndexing(0.25, true)
	m.RecordIndexing(0.10, false)
	m.RecordSagaRollback("index_document")
	m.RecordAuditEvent("QUERY")
	m.RecordAuditEvent("DELETE")

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["retrieval.queries.total"])
	assert.Equal(t, int64(1), sums["retrieval.integrity.failures"])
	assert.Equal(t, int64(120), sums["gemini.tokens.used"])
	assert.Equal(t, int64(2), sums["indexing.documents.total"])
	assert.Equal(t, int64(1), sums["indexing.saga.rollbacks"])
	assert.Equal(t, int64(2), sums["audit.events.logged"])
}
