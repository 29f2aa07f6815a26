package thoughts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var intentMappings = map[string]map[string]string{
	"api-catalog": {
		"api_call":    "api-usage: API endpoint analysis",
		"error":       "api-error: Service error investigation",
		"performance": "api-performance: Response time optimization",
	},
	"click-tracker": {
		"click":      "user-behavior: Click pattern analysis",
		"conversion": "marketing-insight: Conversion optimization",
		"funnel":     "user-journey: Funnel performance",
	},
	"landing": {
		"pageview":   "content-performance: Landing page analysis",
		"bounce":     "ux-insight: Bounce rate investigation",
		"engagement": "user-engagement: Content effectiveness",
	},
	SourceOrchestrator: {
		"deployment":             "infrastructure: Deployment analysis",
		"scaling":                "performance: Auto-scaling insights",
		"health":                 "system-health: Service monitoring",
		EventHealthCheck:         "system-health: Service monitoring",
		EventHealthError:         "system-health: Service failure investigation",
		EventIntelligentDecision: "orchestration: Intelligent decision analysis",
		EventActionExecuted:      "infrastructure: Action execution report",
		EventActionFailed:        "infrastructure: Action failure investigation",
		EventNetworkAnalysis:     "system-health: Network health analysis",
	},
}

// GenerateIntent maps a thought's source and event type to the intent it is
// stored under. Unknown pairs become "<source>: <event> analysis".
func GenerateIntent(source, eventType string) string {
	if intent, ok := intentMappings[source][eventType]; ok {
		return intent
	}
	return fmt.Sprintf("%s: %s analysis", source, eventType)
}

// FormatContent renders the markdown report stored as a thought's content.
func FormatContent(thought Thought) string {
	data, err := json.MarshalIndent(thought.Payload, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%v", thought.Payload))
	}

	var b strings.Builder
	b.WriteString("# Network Intelligence Report\n\n")
	fmt.Fprintf(&b, "## Service: %s\n", strings.ToUpper(thought.Source))
	fmt.Fprintf(&b, "**Event Type:** %s  \n", thought.EventType)
	fmt.Fprintf(&b, "**Timestamp:** %s  \n", thought.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Priority:** %d/10\n\n", thought.Priority)
	b.WriteString("## Data Analysis\n")
	b.Write(data)
	b.WriteString("\n\n## Insights Generated\n")
	fmt.Fprintf(&b, "- Event captured from %s\n", thought.Source)
	fmt.Fprintf(&b, "- Pattern recognition active for %s events\n", thought.EventType)
	b.WriteString("- Ready for correlation analysis\n")
	return b.String()
}
