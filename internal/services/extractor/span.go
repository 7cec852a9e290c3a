package extractor

import (
	"regexp"
	"strings"
	"unicode"
)

const maxBalancedCandidates = 8

var (
	fencePattern        = regexp.MustCompile("```[A-Za-z0-9_-]*")
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	trailingComma       = regexp.MustCompile(`,\s*([}\]])`)
)

func trimSpace(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}

// spanCandidates returns the greedy outermost span followed by balanced spans
// in order of appearance, without duplicates
func spanCandidates(s string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c != "" && !seen[c] && c != s {
			seen[c] = true
			out = append(out, c)
		}
	}

	add(greedySpan(s))
	for _, c := range balancedSpans(s, maxBalancedCandidates) {
		add(c)
	}
	return out
}

// greedySpan returns the text from the first opener to the last matching closer
func greedySpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// balancedSpans scans for depth-balanced {...} or [...] spans, honoring
// string literals and escapes
func balancedSpans(s string, limit int) []string {
	var spans []string

	for i := 0; i < len(s) && len(spans) < limit; i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end := matchClose(s, i); end > i {
			spans = append(spans, s[i:end+1])
			i = end
		}
	}
	return spans
}

// matchClose returns the index closing the bracket at start, or -1
func matchClose(s string, start int) int {
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// Sanitize strips markdown fences, block comments, // comment lines,
// control characters and trailing commas, and collapses whitespace
func Sanitize(s string) string {
	s = fencePattern.ReplaceAllString(s, "")
	s = blockCommentPattern.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	s = whitespacePattern.ReplaceAllString(s, " ")
	s = trailingComma.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
