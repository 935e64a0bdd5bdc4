package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON locates the JSON object inside an oracle response: a fenced
// code block first, a bare brace span second. Responses with neither are a
// hard parse error; a structurally invalid payload must never be silently
// accepted.
func ExtractJSON(response string) (string, error) {
	if m := fencedBlockPattern.FindStringSubmatch(response); m != nil {
		candidate := m[1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no parseable JSON object in oracle response")
}

// pick returns the first present key from a decoded JSON object, tolerating
// known alternate spellings from upstream naming drift.
func pick(raw map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func pickString(raw map[string]json.RawMessage, keys ...string) string {
	v, ok := pick(raw, keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func pickStrings(raw map[string]json.RawMessage, keys ...string) []string {
	v, ok := pick(raw, keys...)
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		return nil
	}
	return out
}

func pickInt64(raw map[string]json.RawMessage, keys ...string) (int64, bool) {
	v, ok := pick(raw, keys...)
	if !ok {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false
	}
	return n, true
}
