package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	reProsePrefix   = regexp.MustCompile(`(?i)^(here is|here's|sure|certainly|of course)[^\[{]*`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	reSingleKey     = regexp.MustCompile(`'([^']*)'(\s*:)`)
	reSingleValue   = regexp.MustCompile(`:(\s*)'([^']*)'`)
	reUnquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	rePyTrue        = regexp.MustCompile(`\bTrue\b`)
	rePyFalse       = regexp.MustCompile(`\bFalse\b`)
	rePyNone        = regexp.MustCompile(`\bNone\b`)
)

// Repair extracts and fixes a JSON document from raw model output. It returns
// a string that unmarshals cleanly, or an error when no candidate survives.
func Repair(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("empty response")
	}
	s = stripFences(s)
	s = reProsePrefix.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	candidates := []string{s}
	if doc := extractBalanced(s, '{', '}'); doc != "" {
		candidates = append(candidates, doc)
	}
	if doc := extractBalanced(s, '[', ']'); doc != "" {
		candidates = append(candidates, doc)
	}

	for _, cand := range candidates {
		if json.Valid([]byte(cand)) {
			return cand, nil
		}
		fixed := fixCommon(cand)
		if json.Valid([]byte(fixed)) {
			return fixed, nil
		}
	}
	return "", errors.New("no parseable JSON found")
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i != -1 {
		// drop a possible language hint such as "json"
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			s = s[i+1:]
		}
	}
	if j := strings.LastIndex(s, "```"); j != -1 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// extractBalanced returns the first balanced open..close span, respecting
// string literals so braces inside values do not confuse the scan.
func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func fixCommon(s string) string {
	s = reTrailingComma.ReplaceAllString(s, "$1")
	s = reSingleKey.ReplaceAllString(s, `"$1"$2`)
	s = reSingleValue.ReplaceAllString(s, `:$1"$2"`)
	s = reUnquotedKey.ReplaceAllString(s, `$1"$2"$3`)
	s = rePyTrue.ReplaceAllString(s, "true")
	s = rePyFalse.ReplaceAllString(s, "false")
	s = rePyNone.ReplaceAllString(s, "null")
	return s
}
