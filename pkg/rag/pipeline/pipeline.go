package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
)

// IPipeline is one complete retrieval-and-answer run, emitting its
// framed output through emit. Run returns an error only when the
// answering model or the emitter itself fails; retrieval problems are
// absorbed into the frame stream.
type IPipeline interface {
	Run(ctx context.Context, question string, history []rag.Message, emit frame.Emitter) error
}

// jsonMarker precedes the machine-readable section of the graph
// model's structured replies.
const jsonMarker = "3.以下是json格式的解析结果："

// extractJSONArray pulls the first complete JSON array out of raw model
// output, preferring the section after the structured-result marker.
func extractJSONArray(output string) (string, bool) {
	if idx := strings.Index(output, jsonMarker); idx >= 0 {
		output = output[idx+len(jsonMarker):]
	}
	start := strings.Index(output, "[")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(output); i++ {
		c := output[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return output[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func decodeStringArray(raw string) ([]string, bool) {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false
	}
	var cleaned []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned, len(cleaned) > 0
}

// decodeIntentItems accepts either a list of {intent_item} objects or a
// bare list of intent strings.
func decodeIntentItems(raw string) []string {
	var objects []struct {
		IntentItem string `json:"intent_item"`
	}
	if err := json.Unmarshal([]byte(raw), &objects); err == nil {
		var items []string
		for _, obj := range objects {
			if item := strings.TrimSpace(obj.IntentItem); item != "" {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	if items, ok := decodeStringArray(raw); ok {
		return items
	}
	return nil
}

// parseCypherStatements accepts a list of {intent_item, cypher} objects
// or a bare list of statements, dropping markdown code fences.
func parseCypherStatements(raw string) []string {
	arr, ok := extractJSONArray(raw)
	if !ok {
		return nil
	}

	var objects []struct {
		Cypher string `json:"cypher"`
	}
	if err := json.Unmarshal([]byte(arr), &objects); err == nil {
		var statements []string
		for _, obj := range objects {
			if stmt := stripCodeFence(obj.Cypher); stmt != "" {
				statements = append(statements, stmt)
			}
		}
		if len(statements) > 0 {
			return statements
		}
	}

	if items, ok := decodeStringArray(arr); ok {
		for i, item := range items {
			items[i] = stripCodeFence(item)
		}
		return items
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= 2 {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

func formatRows(rows []map[string]interface{}) string {
	encoded, err := json.Marshal(rows)
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(encoded)
}
