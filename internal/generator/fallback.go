package generator

import (
	"encoding/json"
	"strings"
)

// Turn is one entry of the conversational history a backend returns next to
// (or instead of) its structured output.
type Turn struct {
	Role    string
	Content []string
}

// ExtractFromHistory recovers a JSON payload from the textual history when
// the structured channel came back empty. Text fragments are joined in
// order, fences are stripped, and the result must parse as JSON. The
// payload is not validated here; callers run it through the same validator
// as primary output.
func ExtractFromHistory(history []Turn) (json.RawMessage, bool) {
	var sb strings.Builder
	for _, turn := range history {
		for _, fragment := range turn.Content {
			sb.WriteString(fragment)
		}
	}

	text := stripCodeFences(sb.String())
	if text == "" {
		return nil, false
	}
	if !json.Valid([]byte(text)) {
		return nil, false
	}
	return json.RawMessage(text), true
}
