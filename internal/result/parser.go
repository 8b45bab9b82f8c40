// Package result parses an agent's raw output into the structured
// job.Result: marker-delimited YAML blocks first, bare JSON objects
// next, raw text last.
package result

import (
	"encoding/json"
	"strings"

	"github.com/RevCBH/kyco/internal/job"
	"gopkg.in/yaml.v3"
)

const endMarker = "---"
const kycoStartMarker = "---kyco"

// Parse applies the recognition rules in order, first match wins:
//  1. if the payload is a JSON string literal, unwrap once and restart.
//  2. scan for "---kyco" ... "---" blocks, take the last well-formed one.
//  3. scan for "---" ... "---" blocks, take the last one with a recognised key.
//  4. if the payload starts with '{', try JSON with the same key set.
//  5. otherwise store the whole payload as RawText.
//
// Returns nil only when the trimmed payload is empty.
func Parse(output string) *job.Result {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil
	}

	// Rule 1: unwrap a JSON string literal exactly once, never in a
	// loop.
	if unwrapped, ok := unwrapJSONStringLiteral(trimmed); ok {
		trimmed = strings.TrimSpace(unwrapped)
	}

	if r := parseYAMLBlock(trimmed, kycoStartMarker); r != nil {
		return r
	}
	if r := parseYAMLBlock(trimmed, endMarker); r != nil {
		return r
	}
	if r := parseJSONBlock(trimmed); r != nil {
		return r
	}

	raw := trimmed
	return &job.Result{RawText: &raw}
}

// unwrapJSONStringLiteral reports whether output is a JSON-encoded
// string (some adapters double-encode their output, which otherwise
// makes every line look like a continuation of one giant YAML key).
func unwrapJSONStringLiteral(output string) (string, bool) {
	if !strings.HasPrefix(output, `"`) {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(output), &s); err != nil {
		return "", false
	}
	return s, true
}

// parseYAMLBlock scans output for marker-delimited blocks and returns
// the LAST well-formed one, preferring the summary block the agent was
// instructed to append last over any example block it echoed earlier.
func parseYAMLBlock(output, startMarker string) *job.Result {
	lines := strings.Split(output, "\n")

	if startMarker == kycoStartMarker {
		var startLines []int
		for i, l := range lines {
			if strings.TrimSpace(l) == startMarker {
				startLines = append(startLines, i)
			}
		}
		for i := len(startLines) - 1; i >= 0; i-- {
			start := startLines[i]
			end := -1
			for j := start + 1; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == endMarker {
					end = j
					break
				}
			}
			if end == -1 {
				continue
			}
			block := strings.Join(lines[start+1:end], "\n")
			if r := parseYAMLContent(block); r != nil {
				return r
			}
		}
		return nil
	}

	// startMarker == "---": find "---" ... "---" pairs, walking backward
	// from the end so the last-appended block wins.
	var markerLines []int
	for i, l := range lines {
		if strings.TrimSpace(l) == endMarker {
			markerLines = append(markerLines, i)
		}
	}
	if len(markerLines) < 2 {
		return nil
	}
	for pairIdx := len(markerLines) - 1; pairIdx >= 1; pairIdx-- {
		start := markerLines[pairIdx-1]
		end := markerLines[pairIdx]
		if end <= start {
			continue
		}
		block := strings.Join(lines[start+1:end], "\n")
		if r := parseYAMLContent(block); r != nil {
			return r
		}
	}
	return nil
}

func parseYAMLContent(content string) *job.Result {
	content = strings.TrimSpace(content)
	if len(content) < 5 {
		return nil
	}

	var m map[string]any
	if err := yaml.Unmarshal([]byte(content), &m); err == nil && m != nil {
		r := fromMap(m)
		if hasStructuredFields(r) {
			return r
		}
	}

	// Fallback: simple "key: value" line scan (backwards compatibility
	// with non-YAML-conformant blocks).
	r := &job.Result{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		assignStringField(r, key, value)
	}
	if hasStructuredFields(r) {
		return r
	}
	return nil
}

func parseJSONBlock(output string) *job.Result {
	if !strings.HasPrefix(output, "{") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(output), &obj); err != nil {
		return nil
	}
	r := fromMap(obj)
	if hasStructuredFields(r) {
		return r
	}
	return nil
}

func fromMap(m map[string]any) *job.Result {
	r := &job.Result{}
	for key, v := range m {
		switch key {
		case "title":
			assignAny(&r.Title, v)
		case "commit_subject", "commitSubject":
			assignAny(&r.CommitSubject, v)
		case "commit_body", "commitBody":
			assignAny(&r.CommitBody, v)
		case "details":
			assignAny(&r.Details, v)
		case "status":
			assignAny(&r.Status, v)
		case "state":
			assignAny(&r.State, v)
		case "summary":
			r.Summary = summaryToString(v)
		case "next_context", "nextContext":
			r.NextContext = v
		}
	}
	return r
}

func assignAny(dst **string, v any) {
	s, ok := v.(string)
	if !ok {
		return
	}
	*dst = &s
}

func assignStringField(r *job.Result, key, value string) {
	switch key {
	case "title":
		r.Title = &value
	case "commit_subject":
		r.CommitSubject = &value
	case "commit_body":
		r.CommitBody = &value
	case "details":
		r.Details = &value
	case "status":
		r.Status = &value
	case "summary":
		r.Summary = &value
	case "state":
		r.State = &value
	}
}

func summaryToString(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func hasStructuredFields(r *job.Result) bool {
	return r.Title != nil || r.CommitSubject != nil || r.CommitBody != nil ||
		r.Details != nil || r.Status != nil || r.Summary != nil ||
		r.State != nil || r.NextContext != nil
}
