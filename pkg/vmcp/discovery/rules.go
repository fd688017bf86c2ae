package discovery

import (
	"context"
	"strings"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// RuleScorer is the zero-dependency signal: keyword overlap between the
// query and the tool's name/description/category/enhancement keywords,
// normalized to [0, 1]. It is always available, unlike the semantic and
// LLM signals which depend on external collaborators.
type RuleScorer struct{}

func (RuleScorer) Score(_ context.Context, query string, tool vmcp.Tool) (float64, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0, nil
	}

	toolTokens := make(map[string]bool)
	for _, tok := range tokenize(tool.Name) {
		toolTokens[tok] = true
	}
	for _, tok := range tokenize(tool.Description) {
		toolTokens[tok] = true
	}
	if cat := tool.Category(); cat != "" {
		for _, tok := range tokenize(cat) {
			toolTokens[tok] = true
		}
	}
	if tool.Enhancement != nil {
		for _, kw := range tool.Enhancement.Keywords {
			for _, tok := range tokenize(kw) {
				toolTokens[tok] = true
			}
		}
		for _, ex := range tool.Enhancement.Examples {
			for _, tok := range tokenize(ex) {
				toolTokens[tok] = true
			}
		}
	}

	hits := 0
	for _, tok := range queryTokens {
		if toolTokens[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens)), nil
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}
