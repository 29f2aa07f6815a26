// Package correlation scores how related two thoughts are by the operational
// keywords they share. The metric is a plain keyword overlap ratio so every
// score can be reproduced by hand.
package correlation

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

// DefaultKeywords is the vocabulary correlations are computed over.
var DefaultKeywords = []string{
	"performance", "scaling", "user", "api", "error",
	"optimization", "deployment", "monitoring",
}

const (
	DefaultThreshold = 0.30
	DefaultLimit     = 10
)

// Correlation relates a thought of set A to a thought of set B.
type Correlation struct {
	AID        string   `json:"a_id"`
	BID        string   `json:"b_id"`
	Similarity float64  `json:"similarity"`
	Keywords   []string `json:"keywords"`
}

// Result of Correlate. Skipped holds one CorrelationInputError per thought
// left out because its content was unusable.
type Result struct {
	Correlations []Correlation
	Skipped      []error
}

type Options struct {
	Keywords  []string
	Threshold float64
	Limit     int
}

type Engine struct {
	keywords  []string
	threshold float64
	limit     int
}

func NewEngine(options Options) *Engine {
	if len(options.Keywords) == 0 {
		options.Keywords = DefaultKeywords
	}
	if options.Threshold <= 0 {
		options.Threshold = DefaultThreshold
	}
	if options.Limit <= 0 {
		options.Limit = DefaultLimit
	}
	keywords := make([]string, len(options.Keywords))
	for i, keyword := range options.Keywords {
		keywords[i] = strings.ToLower(keyword)
	}
	return &Engine{keywords: keywords, threshold: options.Threshold, limit: options.Limit}
}

// Similarity returns shared/present over the vocabulary and the shared
// keywords in vocabulary order. It is symmetric in a and b and 0 when neither
// text contains a vocabulary keyword.
func (e *Engine) Similarity(a, b string) (float64, []string) {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	present, shared := 0, 0
	var common []string
	for _, keyword := range e.keywords {
		inA := strings.Contains(a, keyword)
		inB := strings.Contains(b, keyword)
		if !inA && !inB {
			continue
		}
		present++
		if inA && inB {
			shared++
			common = append(common, keyword)
		}
	}
	if present == 0 {
		return 0, nil
	}
	return float64(shared) / float64(present), common
}

// Correlate scores every pair of setA × setB and keeps pairs at or above the
// threshold, best first, capped at the limit. Equal scores keep iteration
// order. The sets come from separate stores, so equal ids do not mean the
// same thought; callers drop mirrored copies before correlating.
func (e *Engine) Correlate(setA, setB []thoughtstore.Record) Result {
	var result Result

	validA := e.usable(setA, &result)
	validB := e.usable(setB, &result)

	for _, a := range validA {
		for _, b := range validB {
			similarity, keywords := e.Similarity(a.Content, b.Content)
			if similarity < e.threshold || similarity == 0 {
				continue
			}
			result.Correlations = append(result.Correlations, Correlation{
				AID:        a.ID,
				BID:        b.ID,
				Similarity: similarity,
				Keywords:   keywords,
			})
		}
	}

	sort.SliceStable(result.Correlations, func(i, j int) bool {
		return result.Correlations[i].Similarity > result.Correlations[j].Similarity
	})
	if len(result.Correlations) > e.limit {
		result.Correlations = result.Correlations[:e.limit]
	}
	return result
}

func (e *Engine) usable(records []thoughtstore.Record, result *Result) []thoughtstore.Record {
	valid := make([]thoughtstore.Record, 0, len(records))
	for _, record := range records {
		if err := validateRecord(record); err != nil {
			result.Skipped = append(result.Skipped, err)
			continue
		}
		valid = append(valid, record)
	}
	return valid
}

func validateRecord(record thoughtstore.Record) error {
	switch {
	case record.ID == "":
		return errors.NewCorrelationInputError("thought has no id", nil)
	case strings.TrimSpace(record.Content) == "":
		return errors.NewCorrelationInputError("thought has no content", nil).WithContext("id", record.ID)
	case !utf8.ValidString(record.Content):
		return errors.NewCorrelationInputError("thought content is not valid UTF-8", nil).WithContext("id", record.ID)
	}
	return nil
}

// Relevance keyword sets used when bridging thoughts between networks.
var (
	// HostingKeywords select local thoughts worth pushing to the remote network.
	HostingKeywords = []string{
		"performance", "scaling", "response_time", "error_rate",
		"deployment", "health", "optimization", "user", "api",
	}
	// MicroserviceKeywords select remote thoughts worth pulling into the local network.
	MicroserviceKeywords = []string{
		"infrastructure", "scaling", "performance", "automation",
		"deployment", "service", "api", "orchestration",
	}
)

// RelevantTo reports whether the record's intent or content mentions any of
// the keywords.
func RelevantTo(record thoughtstore.Record, keywords []string) bool {
	intent := strings.ToLower(record.Intent)
	content := strings.ToLower(record.Content)
	for _, keyword := range keywords {
		if strings.Contains(intent, keyword) || strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
