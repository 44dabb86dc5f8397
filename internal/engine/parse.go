package engine

import (
	"regexp"
	"strconv"
	"strings"
)

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// StripMarkdownFences removes a surrounding markdown code fence from
// model output. Chat models often wrap JSON in ```json blocks despite
// being told not to.
func StripMarkdownFences(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(content)
}

// ParseImprovement extracts a percentage from a prose improvement
// estimate like "Up to 75% faster". Returns 0 when no percentage is
// present, which callers treat as "no estimate".
func ParseImprovement(text string) float64 {
	match := percentPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	return value
}
