package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
)

// cleanMarkdownWrapper strips ```json fences some models add despite being
// told not to.
func cleanMarkdownWrapper(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// responseID accepts both numeric and string ids.
type responseID string

func (r *responseID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = responseID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = responseID(n.String())
	return nil
}

type rawResult struct {
	Confidence  *float64   `json:"confidence"`
	ID          responseID `json:"id"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
}

// extractArray finds the JSON array in a response. Models constrained to a
// JSON object usually wrap the array in a single field.
func extractArray(content string) ([]rawResult, error) {
	content = cleanMarkdownWrapper(content)

	if strings.HasPrefix(content, "{") {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(content), &wrapper); err == nil {
			for _, value := range wrapper {
				var results []rawResult
				if err := json.Unmarshal(value, &results); err == nil && results != nil {
					return results, nil
				}
			}
			var single rawResult
			if err := json.Unmarshal([]byte(content), &single); err == nil && single.ID != "" {
				return []rawResult{single}, nil
			}
		}
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON array found", common.ErrMalformedResponse)
	}

	var results []rawResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &results); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	return results, nil
}

// parseBatchResponse maps a model response back onto the requested items.
// Unknown ids, repeated ids and categories outside the vocabulary are
// dropped; an invalid subcategory is cleared and the category kept.
func parseBatchResponse(content string, items []Item, vocabulary model.Vocabulary, defaultConfidence float64) ([]Result, error) {
	raw, err := extractArray(content)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}

	seen := make(map[int]bool, len(raw))
	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		idx, ok := resolveIndex(string(r.ID), items, byID)
		if !ok || seen[idx] {
			continue
		}

		category := strings.ToLower(strings.TrimSpace(r.Category))
		if !vocabulary.Contains(category) {
			continue
		}
		subcategory := strings.ToLower(strings.TrimSpace(r.Subcategory))
		if !vocabulary.Allows(category, subcategory) {
			subcategory = ""
		}

		seen[idx] = true
		results = append(results, Result{
			ID:          items[idx].ID,
			Category:    category,
			Subcategory: subcategory,
			Confidence:  confidenceOrDefault(r.Confidence, defaultConfidence),
		})
	}
	return results, nil
}

// resolveIndex accepts the 1-based position used in the prompt or the
// item's own id.
func resolveIndex(id string, items []Item, byID map[string]int) (int, bool) {
	if idx, ok := byID[id]; ok {
		return idx, true
	}
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > len(items) {
		return 0, false
	}
	return n - 1, true
}

func confidenceOrDefault(c *float64, def float64) float64 {
	if c == nil || *c <= 0 {
		return def
	}
	if *c > 1 {
		return 1
	}
	return *c
}
