package correlation

import (
	"testing"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, content string) thoughtstore.Record {
	return thoughtstore.Record{ID: id, Content: content}
}

func TestSimilarity(t *testing.T) {
	engine := NewEngine(Options{})

	tests := []struct {
		name     string
		a, b     string
		expected float64
		keywords []string
	}{
		{"identical vocabulary", "API performance", "performance of the api", 1, []string{"performance", "api"}},
		{"half shared", "performance scaling", "performance only", 0.5, []string{"performance"}},
		{"nothing shared", "deployment", "monitoring", 0, nil},
		{"no vocabulary at all", "hello", "world", 0, nil},
		{"case insensitive", "ERROR in Deployment", "deployment error", 1, []string{"error", "deployment"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			similarity, keywords := engine.Similarity(tt.a, tt.b)
			assert.InDelta(t, tt.expected, similarity, 1e-9)
			assert.Equal(t, tt.keywords, keywords)
			assert.GreaterOrEqual(t, similarity, 0.0)
			assert.LessOrEqual(t, similarity, 1.0)
		})
	}
}

func TestCorrelate_IsSymmetric(t *testing.T) {
	engine := NewEngine(Options{})
	setA := []thoughtstore.Record{
		record("a1", "api performance regression"),
		record("a2", "deployment scaling error"),
		record("a3", "user monitoring"),
	}
	setB := []thoughtstore.Record{
		record("b1", "performance optimization for api"),
		record("b2", "scaling after deployment"),
		record("b3", "user monitoring dashboards"),
	}

	forward := engine.Correlate(setA, setB).Correlations
	backward := engine.Correlate(setB, setA).Correlations
	require.NotEmpty(t, forward)
	require.Len(t, backward, len(forward))

	scores := map[[2]string]float64{}
	for _, c := range forward {
		scores[[2]string{c.AID, c.BID}] = c.Similarity
	}
	for _, c := range backward {
		score, ok := scores[[2]string{c.BID, c.AID}]
		require.True(t, ok, "pair %s/%s missing from forward result", c.BID, c.AID)
		assert.InDelta(t, score, c.Similarity, 1e-12)
	}
}

func TestCorrelate_ThresholdAndZeroSimilarityExcluded(t *testing.T) {
	engine := NewEngine(Options{})
	result := engine.Correlate(
		[]thoughtstore.Record{record("a", "performance scaling user api")},
		[]thoughtstore.Record{
			record("low", "performance deployment monitoring error optimization"), // 1/8
			record("none", "nothing relevant here"),
			record("edge", "performance scaling deployment error monitoring optimization"), // 2/8 < 0.3
			record("high", "performance scaling user"),                                     // 3/4
		},
	)

	require.Len(t, result.Correlations, 1)
	assert.Equal(t, "high", result.Correlations[0].BID)
	assert.Equal(t, 0.75, result.Correlations[0].Similarity)
	assert.Equal(t, []string{"performance", "scaling", "user"}, result.Correlations[0].Keywords)
}

func TestCorrelate_ThresholdIsInclusive(t *testing.T) {
	engine := NewEngine(Options{Keywords: []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9", "k10"}, Threshold: 0.3})
	// 3 shared of 10 present: exactly 0.3.
	result := engine.Correlate(
		[]thoughtstore.Record{record("a", "k1 k2 k3 k4 k5 k6 k7 k8 k9 k10")},
		[]thoughtstore.Record{record("b", "k1 k2 k3")},
	)
	require.Len(t, result.Correlations, 1)
}

func TestCorrelate_TopTenStableOrder(t *testing.T) {
	engine := NewEngine(Options{})
	setA := []thoughtstore.Record{record("a", "api performance")}
	var setB []thoughtstore.Record
	ids := []string{"b00", "b01", "b02", "b03", "b04", "b05", "b06", "b07", "b08", "b09", "b10", "b11"}
	for _, id := range ids {
		setB = append(setB, record(id, "api performance"))
	}
	setB = append(setB, record("best-late", "api performance"))

	correlations := engine.Correlate(setA, setB).Correlations

	require.Len(t, correlations, 10)
	for i, c := range correlations {
		assert.Equal(t, ids[i], c.BID)
	}
}

func TestCorrelate_ComparesEqualIDsAcrossSets(t *testing.T) {
	engine := NewEngine(Options{})
	local := record("3", "api performance")
	remote := record("3", "api performance")

	correlations := engine.Correlate([]thoughtstore.Record{local}, []thoughtstore.Record{remote}).Correlations
	require.Len(t, correlations, 1)
	assert.Equal(t, "3", correlations[0].AID)
	assert.Equal(t, "3", correlations[0].BID)
	assert.Equal(t, 1.0, correlations[0].Similarity)
}

func TestCorrelate_SkipsMalformedContent(t *testing.T) {
	engine := NewEngine(Options{})
	result := engine.Correlate(
		[]thoughtstore.Record{record("a", "api performance"), record("empty", "  "), record("bad", "api \xff")},
		[]thoughtstore.Record{record("b", "api performance")},
	)

	assert.Len(t, result.Correlations, 1)
	require.Len(t, result.Skipped, 2)
	for _, err := range result.Skipped {
		assert.True(t, errors.IsCorrelationInputError(err))
	}
}

func TestRelevantTo(t *testing.T) {
	health := thoughtstore.Record{Intent: "system-health: Node monitoring", Content: "ok"}
	infra := thoughtstore.Record{Intent: "note", Content: "Automation of infrastructure"}

	assert.True(t, RelevantTo(health, HostingKeywords))
	assert.False(t, RelevantTo(health, MicroserviceKeywords))
	assert.True(t, RelevantTo(infra, MicroserviceKeywords))
	assert.False(t, RelevantTo(thoughtstore.Record{Content: "lunch"}, HostingKeywords))
}

func TestExtractInsights(t *testing.T) {
	insights := ExtractInsights([]thoughtstore.Record{
		{Source: "svc-a", Content: "health_error: connection refused"},
		{Source: "svc-a", Content: "Performance degraded"},
		{Source: "svc-a", Intent: "scaling: evolved", Content: "ok", ParentID: "p1"},
	})

	assert.Equal(t, []string{"Error pattern detected in svc-a"}, insights.Alerts)
	assert.Equal(t, []string{"Performance optimization needed for svc-a"}, insights.Recommendations)
	assert.Equal(t, []string{"Evolution detected: scaling: evolved"}, insights.Patterns)

	empty := ExtractInsights(nil)
	assert.NotNil(t, empty.Alerts)
}
