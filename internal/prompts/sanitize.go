package prompts

import (
	"regexp"
	"strings"
)

// DefaultMaxInput bounds user text when no tighter limit applies.
const DefaultMaxInput = 10000

// Redacted replaces every injection pattern found by Sanitize.
const Redacted = "[REDACTED]"

var injectionPatterns = []string{
	"ignore previous instructions",
	"ignore above instructions",
	"forget everything above",
	"system prompt",
	"act as",
	"pretend to be",
	"you are now",
	"new instructions:",
	"override:",
	"bypass",
	"ignore safety",
}

// injectionRe matches whole words only, so "bypassoperatie" or "contact
// as" pass through untouched.
var injectionRe = func() *regexp.Regexp {
	quoted := make([]string, len(injectionPatterns))
	for i, p := range injectionPatterns {
		q := `\b` + regexp.QuoteMeta(p)
		if p[len(p)-1] != ':' {
			q += `\b`
		}
		quoted[i] = q
	}
	return regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)`)
}()

// Sanitize truncates input to maxLen runes, redacts known prompt-injection
// phrases regardless of case and trims surrounding whitespace.
// maxLen <= 0 means DefaultMaxInput.
func Sanitize(input string, maxLen int) string {
	if input == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxInput
	}
	if r := []rune(input); len(r) > maxLen {
		input = string(r[:maxLen])
	}
	return strings.TrimSpace(injectionRe.ReplaceAllString(input, Redacted))
}

// ContainsInjection reports whether input holds any redacted phrase.
func ContainsInjection(input string) bool {
	return injectionRe.MatchString(input)
}
