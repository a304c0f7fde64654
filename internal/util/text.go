package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	hashtag     = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	listMarker  = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
	quoteChars  = strings.NewReplacer(`"`, "", `'`, "", "“", "", "”", "", "‘", "", "’", "", "«", "", "»", "", "`", "")
	sentenceEnd = regexp.MustCompile(`[.!?]+`)
)

// Ellipsis is appended to content cut down to the length limit.
const Ellipsis = "..."

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// NormalizeContent turns a raw model response into publishable text: quote
// characters, hashtags and leading numbered-list markers are removed,
// whitespace collapsed, and the result cut to limit runes.
func NormalizeContent(raw string, limit int) string {
	s := listMarker.ReplaceAllString(raw, "")
	s = quoteChars.Replace(s)
	s = hashtag.ReplaceAllString(s, "")
	s = NormalizeWhitespace(s)
	return Truncate(s, limit)
}

// Truncate cuts s to at most limit runes, ending in Ellipsis when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(Ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:keep]), " ") + Ellipsis
}

// Tokenize lower-cases s and splits it on spaces and punctuation.
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	repl := strings.NewReplacer(
		",", " ", ".", " ", "!", " ", "?", " ", ":", " ", ";", " ",
		"\n", " ", "\t", " ", "\r", " ", "(", " ", ")", " ", "[", " ", "]", " ",
	)
	s = repl.Replace(s)
	parts := strings.Fields(s)
	return parts
}

// Sentences splits text on terminal punctuation and drops empty parts.
func Sentences(s string) []string {
	var out []string
	for _, p := range sentenceEnd.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
