package monitoring

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMetrics(t *testing.T) {
	payload := map[string]interface{}{
		"status":        "ok",
		"cpu_usage":     0.42,
		"memory_usage":  "0.61",
		"error_rate":    json.Number("0.01"),
		"request_count": 1200,
		"response_time": "not a number",
	}

	metrics := ExtractMetrics(payload, 150*time.Millisecond)

	require.NotNil(t, metrics.CPUUsage)
	assert.Equal(t, 0.42, *metrics.CPUUsage)
	require.NotNil(t, metrics.MemoryUsage)
	assert.Equal(t, 0.61, *metrics.MemoryUsage)
	require.NotNil(t, metrics.ErrorRate)
	assert.Equal(t, 0.01, *metrics.ErrorRate)
	require.NotNil(t, metrics.RequestCount)
	assert.Equal(t, 1200.0, *metrics.RequestCount)
	require.NotNil(t, metrics.ResponseTime, "falls back to measured latency")
	assert.Equal(t, 150.0, *metrics.ResponseTime)
}

func TestExtractMetrics_PayloadResponseTimeWins(t *testing.T) {
	metrics := ExtractMetrics(map[string]interface{}{"response_time": 2500.0}, 20*time.Millisecond)
	require.NotNil(t, metrics.ResponseTime)
	assert.Equal(t, 2500.0, *metrics.ResponseTime)
}

func TestExtractMetrics_NestedMetrics(t *testing.T) {
	payload := map[string]interface{}{
		"cpu_usage": 0.9,
		"metrics": map[string]interface{}{
			"cpu_usage":    0.1,
			"memory_usage": 0.5,
		},
	}

	metrics := ExtractMetrics(payload, 0)
	assert.Equal(t, 0.9, *metrics.CPUUsage)
	assert.Equal(t, 0.5, *metrics.MemoryUsage)
	assert.Nil(t, metrics.ResponseTime)
	assert.Nil(t, metrics.ErrorRate)
}

func TestExtractMetrics_EmptyPayload(t *testing.T) {
	metrics := ExtractMetrics(nil, 0)
	assert.Nil(t, metrics.CPUUsage)
	assert.Nil(t, metrics.MemoryUsage)
	assert.Nil(t, metrics.ErrorRate)
	assert.Nil(t, metrics.ResponseTime)
	assert.Nil(t, metrics.RequestCount)
}
