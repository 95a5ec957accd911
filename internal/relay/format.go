package relay

import (
	"regexp"
	"strings"
)

// mentionRe matches Slack (<@U123>) and Discord (<@123>, <@!123>) user
// mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// stripMentions removes user mentions and surrounding whitespace.
func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// SplitText breaks text into chunks of at most limit runes. Breaks prefer a
// newline, then a space, in the second half of each window. A limit <= 0
// returns text unchanged.
func SplitText(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := breakPoint(runes[:limit])
		if chunk := strings.TrimRight(string(runes[:cut]), " \n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimLeft(string(runes), "\n"); strings.TrimSpace(rest) != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// breakPoint returns where to cut window: just after the last newline or
// space in its second half, else at its end.
func breakPoint(window []rune) int {
	half := len(window) / 2
	for _, sep := range []rune{'\n', ' '} {
		for i := len(window) - 1; i > half; i-- {
			if window[i] == sep {
				return i + 1
			}
		}
	}
	return len(window)
}

// truncate returns s truncated to maxLen runes with "..." appended if needed.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
