package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls the first parseable top-level JSON object or array out
// of a completion. Completions routinely wrap JSON in markdown fences,
// prose, or both, and occasionally carry minor syntax errors; this applies
// a best-effort repair before giving up. The returned string is valid JSON.
func ExtractJSON(response string) (string, error) {
	// Prefer fenced content when present; the fence is the model telling
	// us where the payload is.
	search := response
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		search = m[1]
	}

	for _, candidate := range findJSONCandidates(search) {
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		if repaired := repairJSON(candidate); json.Valid([]byte(repaired)) {
			return repaired, nil
		}
	}
	return "", fmt.Errorf("no parseable JSON found in response (%d bytes)", len(response))
}

// DecodeJSON extracts and unmarshals the JSON payload of a completion.
func DecodeJSON(response string, v any) error {
	payload, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to decode generation output: %w", err)
	}
	return nil
}

// findJSONCandidates scans the input for top-level JSON object and array
// candidates using a byte-level state machine that tracks brace depth and
// string escaping. Iterating bytes is safe for the ASCII delimiters
// involved because UTF-8 never embeds ASCII bytes in multi-byte sequences.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	var start = -1
	var opener byte
	var inString, escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		if b == '"' {
			if depth > 0 {
				inString = true
			}
			continue
		}

		switch b {
		case '{', '[':
			if depth == 0 {
				start = i
				opener = b
			}
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			// Only the closer matching the opener can end a candidate;
			// mismatched closers inside are left to json.Valid to reject.
			depth--
			if depth == 0 && start != -1 {
				if (opener == '{' && b == '}') || (opener == '[' && b == ']') {
					candidates = append(candidates, s[start:i+1])
				}
				start = -1
			}
		}
	}
	return candidates
}

// repairJSON fixes the one malformation generation output actually
// produces often enough to matter: trailing commas before a closing
// brace/bracket. Quote-level surgery is deliberately avoided since legal
// text legitimately contains curly quotes inside string values.
func repairJSON(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	var inString, escape bool
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if escape {
			escape = false
			sb.WriteRune(r)
			continue
		}
		if inString {
			if r == '\\' {
				escape = true
			} else if r == '"' {
				inString = false
			}
			sb.WriteRune(r)
			continue
		}

		switch r {
		case '"':
			inString = true
			sb.WriteRune(r)
		case ',':
			// Drop the comma when the next non-space rune closes a
			// container.
			j := i + 1
			for j < len(runes) && isJSONSpace(runes[j]) {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isJSONSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
