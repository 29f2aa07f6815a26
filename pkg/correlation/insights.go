package correlation

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

// Insights are the simple signals derived from a service's thoughts.
type Insights struct {
	Patterns        []string `json:"patterns"`
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
}

// ExtractInsights derives insights from records: an alert for each record
// mentioning an error, a recommendation for each mentioning performance and a
// pattern for each that evolved from a parent.
func ExtractInsights(records []thoughtstore.Record) Insights {
	insights := Insights{
		Patterns:        []string{},
		Recommendations: []string{},
		Alerts:          []string{},
	}
	for _, record := range records {
		content := strings.ToLower(record.Content)
		source := record.Source
		if source == "" {
			source = "unknown"
		}
		if strings.Contains(content, "error") {
			insights.Alerts = append(insights.Alerts, fmt.Sprintf("Error pattern detected in %s", source))
		}
		if strings.Contains(content, "performance") {
			insights.Recommendations = append(insights.Recommendations, fmt.Sprintf("Performance optimization needed for %s", source))
		}
		if record.ParentID != "" {
			insights.Patterns = append(insights.Patterns, fmt.Sprintf("Evolution detected: %s", record.Intent))
		}
	}
	return insights
}
