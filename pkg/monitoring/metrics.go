package monitoring

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
)

// ExtractMetrics reads the known metric fields from a health payload. Flat
// fields win over a nested "metrics" object. When the payload carries no
// response_time the measured latency is used. Missing or non-numeric values
// stay unknown.
func ExtractMetrics(payload map[string]interface{}, latency time.Duration) fleet.Metrics {
	var metrics fleet.Metrics
	if nested, ok := payload["metrics"].(map[string]interface{}); ok {
		metrics = readMetrics(nested)
	}
	metrics = metrics.Merge(readMetrics(payload))

	if metrics.ResponseTime == nil && latency > 0 {
		metrics.ResponseTime = fleet.Float(float64(latency) / float64(time.Millisecond))
	}
	return metrics
}

func readMetrics(values map[string]interface{}) fleet.Metrics {
	return fleet.Metrics{
		CPUUsage:     number(values["cpu_usage"]),
		MemoryUsage:  number(values["memory_usage"]),
		ErrorRate:    number(values["error_rate"]),
		ResponseTime: number(values["response_time"]),
		RequestCount: number(values["request_count"]),
	}
}

func number(value interface{}) *float64 {
	switch v := value.(type) {
	case float64:
		return fleet.Float(v)
	case int:
		return fleet.Float(float64(v))
	case int64:
		return fleet.Float(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return fleet.Float(f)
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return fleet.Float(f)
		}
	}
	return nil
}
