package observability

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropagateAndExtractCorrelationRoundTrips(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://worker.local/run", nil)
	require.NoError(t, err)

	PropagateHeaders(req, "corr-123", "env-parent")

	correlation, parent := ExtractCorrelation(req)
	assert.Equal(t, "corr-123", correlation)
	assert.Equal(t, "env-parent", parent)
}

func TestPropagateHeadersSkipsEmptyValues(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://worker.local/run", nil)
	require.NoError(t, err)

	PropagateHeaders(req, "", "")

	assert.Empty(t, req.Header.Get(correlationHeader))
	assert.Empty(t, req.Header.Get(parentHeader))
}

func TestFromContextWithoutSpanReturnsCorrelationOnly(t *testing.T) {
	sc := FromContext(context.Background(), "corr-456")
	assert.Equal(t, "corr-456", sc.Correlation)
	assert.Empty(t, sc.TraceID)
	assert.Empty(t, sc.SpanID)
}
