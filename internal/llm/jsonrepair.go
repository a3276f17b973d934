package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// NewlinePolicy decides what happens to raw newlines in a candidate JSON span.
// The two providers emit different garbage, so each keeps its own policy.
type NewlinePolicy int

const (
	// EscapeNewlines turns literal newlines inside quoted strings into \n
	EscapeNewlines NewlinePolicy = iota

	// CollapseNewlines replaces every newline in the candidate with a space
	CollapseNewlines
)

func (p NewlinePolicy) String() string {
	switch p {
	case EscapeNewlines:
		return "escape"
	case CollapseNewlines:
		return "collapse"
	default:
		return "unknown"
	}
}

// repairStep is one rung of the repair ladder
type repairStep struct {
	name  string
	parse func(text string) (json.RawMessage, error)
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	codeFenceRe     = regexp.MustCompile("```(?:json|JSON)?")

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"‘", "'", "’", "'",
	)

	errNoObject = errors.New("no JSON object found")
)

// geminiLadder tries a direct parse first, then the brace span, then fences
func geminiLadder() []repairStep {
	return []repairStep{
		{name: "direct", parse: parseDirect},
		{name: "brace-span", parse: braceSpanParser(EscapeNewlines)},
		{name: "fence-stripped", parse: parseFenceStripped},
	}
}

// groqLadder starts at the brace span
func groqLadder() []repairStep {
	return []repairStep{
		{name: "brace-span", parse: braceSpanParser(CollapseNewlines)},
		{name: "fence-stripped", parse: parseFenceStripped},
	}
}

// ladderFor returns the repair ladder used with a newline policy
func ladderFor(policy NewlinePolicy) []repairStep {
	if policy == CollapseNewlines {
		return groqLadder()
	}
	return geminiLadder()
}

// ExtractJSON recovers a JSON value from free-form model output by walking the
// repair ladder for the given policy. The result is compacted, so running it
// again on its own output yields the same bytes.
func ExtractJSON(text string, policy NewlinePolicy) (json.RawMessage, error) {
	var errs []error
	for _, step := range ladderFor(policy) {
		out, err := step.parse(text)
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
	}
	return nil, fmt.Errorf("%w (%s newlines): %w; response starts with %q",
		ErrMalformedResponse, policy, errors.Join(errs...), preview(text, 200))
}

func parseDirect(text string) (json.RawMessage, error) {
	return strictParse(strings.TrimSpace(text))
}

func braceSpanParser(policy NewlinePolicy) func(string) (json.RawMessage, error) {
	return func(text string) (json.RawMessage, error) {
		candidate, ok := braceSpan(text)
		if !ok {
			return nil, errNoObject
		}
		candidate = removeTrailingCommas(candidate)
		candidate = normalizeQuotes(candidate)
		switch policy {
		case CollapseNewlines:
			candidate = collapseNewlines(candidate)
		default:
			candidate = escapeNewlinesInStrings(candidate)
		}
		return strictParse(candidate)
	}
}

func parseFenceStripped(text string) (json.RawMessage, error) {
	return strictParse(strings.TrimSpace(stripFences(text)))
}

// braceSpan returns the text between the first '{' and the last '}'
func braceSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func removeTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

func normalizeQuotes(s string) string {
	return smartQuotes.Replace(s)
}

func stripFences(s string) string {
	return codeFenceRe.ReplaceAllString(s, "")
}

func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

// escapeNewlinesInStrings escapes raw CR/LF found inside quoted string spans
func escapeNewlinesInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func strictParse(s string) (json.RawMessage, error) {
	if s == "" {
		return nil, errors.New("empty input")
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
