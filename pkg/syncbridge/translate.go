package syncbridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

// remoteIntents maps local intent fragments to the remote vocabulary. The
// first matching fragment wins, so order matters.
var remoteIntents = []struct {
	fragment string
	intent   string
}{
	{"api-performance", "hosting-optimization: API performance insights"},
	{"system-health", "infrastructure-monitoring: System health analysis"},
	{"user-behavior", "user-experience: Behavior pattern analysis"},
	{"scaling", "hosting-scalability: Auto-scaling insights"},
	{"deployment", "hosting-deployment: Deployment optimization"},
}

// TranslateIntent maps a local intent into the remote network's vocabulary.
func TranslateIntent(intent string) string {
	for _, mapping := range remoteIntents {
		if strings.Contains(intent, mapping.fragment) {
			return mapping.intent
		}
	}
	return "cross-network-insight: " + intent
}

// TranslateContent wraps a local thought in the cross-network report pushed
// to the remote store.
func TranslateContent(record thoughtstore.Record) string {
	source := record.Source
	if source == "" {
		source = "Unknown"
	}
	content := record.Content
	if content == "" {
		content = "No content available"
	}

	var builder strings.Builder
	builder.WriteString("# Cross-Network Intelligence Sync\n\n")
	builder.WriteString("## Source System: Microservice Orchestrator\n")
	fmt.Fprintf(&builder, "**Original Intent:** %s  \n", record.Intent)
	fmt.Fprintf(&builder, "**Service:** %s  \n", source)
	fmt.Fprintf(&builder, "**Timestamp:** %s\n\n", record.Timestamp.UTC().Format(time.RFC3339))
	builder.WriteString("## Hosting-Relevant Insights\n")
	builder.WriteString(content)
	builder.WriteString("\n\n## Cross-Network Context\n")
	builder.WriteString("Synchronized automatically from the microservice network and adapted for hosting context.\n")
	return builder.String()
}

// DecisionIntent is the intent a propagated decision is stored under.
func DecisionIntent(d decision.Decision) string {
	return fmt.Sprintf("orchestration-insight: %s decision analysis", d.Action)
}

// DecisionContent renders a decision as a remote report.
func DecisionContent(d decision.Decision) string {
	var builder strings.Builder
	builder.WriteString("# Orchestration Decision Intelligence\n\n")
	builder.WriteString("## Decision Details\n")
	fmt.Fprintf(&builder, "**Service:** %s  \n", d.Service)
	fmt.Fprintf(&builder, "**Action:** %s  \n", d.Action)
	fmt.Fprintf(&builder, "**Reason:** %s  \n", d.Reason)
	fmt.Fprintf(&builder, "**Executed:** %t  \n", d.Executed)
	fmt.Fprintf(&builder, "**Timestamp:** %s\n", d.Timestamp.UTC().Format(time.RFC3339))
	if len(d.Evidence) > 0 {
		builder.WriteString("\n## Evidence\n")
		for _, evidence := range d.Evidence {
			fmt.Fprintf(&builder, "- %s\n", evidence)
		}
	}
	builder.WriteString("\n## Hosting Strategy Insights\n")
	fmt.Fprintf(&builder, "- Infrastructure scaling triggers: %s\n", d.Reason)
	builder.WriteString("- Apply similar thresholds to hosting deployments\n")
	return builder.String()
}
