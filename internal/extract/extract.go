// Package extract pulls a single JSON object out of free-form model output.
//
// Models asked for "strict JSON" still tend to wrap the object in prose or a
// code fence. The extractor first tries a ```json fenced block, then any
// fenced block, then falls back to scanning from the first '{' and tracking
// brace depth while skipping quoted strings (single or double quoted, with
// escapes). Only the first complete object is extracted; any later objects
// in the same reply are ignored.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
)

var (
	fencedJSONPattern = regexp.MustCompile("(?is)```\\s*json\\s*(.*?)```")
	fencedAnyPattern  = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// Object returns the raw bytes of the first JSON object found in text.
func Object(text string) (json.RawMessage, error) {
	if candidate, ok := fencedCandidate(text); ok {
		if !json.Valid([]byte(candidate)) {
			return nil, agerr.New(agerr.CodeExtraction, "fenced block is not valid JSON")
		}
		return json.RawMessage(candidate), nil
	}

	slice, err := firstObjectSlice(text)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(slice)) {
		return nil, agerr.New(agerr.CodeExtraction, "JSON fragment is not parseable")
	}
	return json.RawMessage(slice), nil
}

// Decode extracts the first JSON object from text and unmarshals it into out.
func Decode(text string, out any) error {
	raw, err := Object(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return agerr.Wrap(agerr.CodeExtraction, "decode extracted JSON", err)
	}
	return nil
}

func fencedCandidate(text string) (string, bool) {
	m := fencedJSONPattern.FindStringSubmatch(text)
	if m == nil {
		m = fencedAnyPattern.FindStringSubmatch(text)
	}
	if m == nil {
		return "", false
	}
	candidate := strings.TrimSpace(m[1])
	if candidate == "" {
		return "", false
	}
	return candidate, true
}

func firstObjectSlice(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", agerr.New(agerr.CodeExtraction, "no opening brace in model output")
	}

	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), nil
			}
		}
	}
	return "", agerr.New(agerr.CodeExtraction, "unterminated JSON fragment in model output")
}
