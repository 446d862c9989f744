package runtime

import (
	"strings"
)

// profileSignal is one (key, value, category) triple extracted from a raw
// user message.
type profileSignal struct {
	Key      string
	Value    string
	Category string
}

type profilePattern struct {
	prefixes []string
	key      string
	category string
	wholeWord bool
}

var profilePatterns = []profilePattern{
	{prefixes: []string{"i prefer ", "i like "}, key: "preference", category: "preference"},
	{prefixes: []string{"my name is "}, key: "name", category: "fact", wholeWord: true},
	{prefixes: []string{"i'm working on ", "i am working on "}, key: "current_project", category: "fact"},
	{prefixes: []string{"i use ", "i'm using ", "i am using "}, key: "tooling", category: "preference"},
	{prefixes: []string{"my goal is ", "i want to "}, key: "goal", category: "goal"},
}

// extractInlineProfileSignals runs the heuristic patterns over a single user
// message. Matches with a captured value over 80 chars are discarded. If the
// same key matches more than once, only the first survives.
func extractInlineProfileSignals(userMessage string) []profileSignal {
	var signals []profileSignal
	lower := strings.ToLower(userMessage)
	seen := make(map[string]bool)

	for _, pat := range profilePatterns {
		for _, prefix := range pat.prefixes {
			pos := strings.Index(lower, prefix)
			if pos == -1 {
				continue
			}
			rest := userMessage[pos+len(prefix):]
			var value string
			if pat.wholeWord {
				value = extractWord(rest)
			} else {
				value = extractPhrase(rest)
			}
			if value == "" || len(value) > 80 {
				continue
			}
			if seen[pat.key] {
				continue
			}
			seen[pat.key] = true
			signals = append(signals, profileSignal{Key: pat.key, Value: value, Category: pat.category})
		}
	}
	return signals
}

// extractPhrase takes everything up to the first sentence-ending
// punctuation or newline.
func extractPhrase(text string) string {
	end := strings.IndexAny(text, ".!?\n;")
	if end == -1 {
		end = len(text)
	}
	return strings.TrimSpace(text[:end])
}

// extractWord takes only the first word, trimming non-alphanumeric edges.
func extractWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimFunc(fields[0], func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}
