package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Decision is the model's parsed reply for one reasoning turn. Exactly one of
// Action or FinalAnswer is meaningful: a non-empty Action requests a tool
// call, otherwise FinalAnswer ends the run.
type Decision struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
	FinalAnswer string `json:"final_answer"`
}

// IsFinal reports whether the decision ends the run.
func (d *Decision) IsFinal() bool {
	return d.Action == ""
}

// ParseDecision extracts a Decision from raw model output. Models wrap JSON
// in prose and code fences often enough that parsing tries progressively
// harder: strip fences, take the outermost object, then repair the JSON. A
// reply with no recoverable JSON at all is treated as a direct final answer
// rather than an error, so a chatty model still terminates the loop.
func ParseDecision(content string) (*Decision, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("empty model response")
	}

	candidate := extractJSONObject(stripCodeFences(trimmed))
	if candidate == "" {
		return &Decision{FinalAnswer: trimmed}, nil
	}

	var d Decision
	if err := json.Unmarshal([]byte(candidate), &d); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return &Decision{FinalAnswer: trimmed}, nil
		}
		if err := json.Unmarshal([]byte(repaired), &d); err != nil {
			return &Decision{FinalAnswer: trimmed}, nil
		}
	}

	d.Action = strings.TrimSpace(d.Action)
	if d.IsFinal() && d.FinalAnswer == "" {
		// A JSON object carrying neither action nor answer is useless,
		// fall back to the raw text.
		if d.Thought != "" {
			d.FinalAnswer = d.Thought
		} else {
			d.FinalAnswer = trimmed
		}
	}
	return &d, nil
}

// stripCodeFences removes a surrounding markdown code fence if present.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// extractJSONObject returns the outermost braced object in s, or empty when
// there is none.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
