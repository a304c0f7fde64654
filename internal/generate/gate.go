package generate

import (
	"fmt"
	"regexp"
	"strings"

	"tweetsmith/internal/category"
	"tweetsmith/internal/config"
	"tweetsmith/internal/util"
)

var (
	comparisonWord = regexp.MustCompile(`(?i)\b(like|as|resembles)\b`)
	innerPunct     = regexp.MustCompile(`[,;:—–-]`)
	interrogative  = regexp.MustCompile(`(?i)\b(why|what|how|who|when|where|which)\b`)
	wisdomWord     = regexp.MustCompile(`(?i)\b(wisdom|wise|truth|path|karma|dharma|duty|detach\w*|peace|self|soul|action|mind)\b`)
)

// Gate rejects clichéd or structurally weak candidates. The zero Gate accepts everything.
type Gate struct {
	enabled            bool
	bannedPhrases      []string
	bannedOpenings     []*regexp.Regexp
	maxRepeatedOpeners int
}

// NewGate compiles the configured rule set.
func NewGate(cfg config.CreativityConfig) (*Gate, error) {
	g := &Gate{
		enabled:            cfg.Enabled,
		bannedPhrases:      cfg.BannedPhrases,
		maxRepeatedOpeners: cfg.MaxRepeatedOpeners,
	}
	for _, p := range cfg.BannedOpenings {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("banned opening %q: %w", p, err)
		}
		g.bannedOpenings = append(g.bannedOpenings, re)
	}
	return g, nil
}

// Check returns a non-nil error describing why text fails the gate for def.
func (g *Gate) Check(text string, def category.Definition) error {
	if g == nil || !g.enabled {
		return nil
	}
	lower := strings.ToLower(text)
	for _, p := range g.bannedPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return fmt.Errorf("common phrase %q", p)
		}
	}
	sentences := util.Sentences(text)
	if len(sentences) > 0 {
		first := strings.TrimSpace(sentences[0])
		for _, re := range g.bannedOpenings {
			if re.MatchString(first) {
				return fmt.Errorf("banned opening %q", re.String())
			}
		}
	}
	if g.maxRepeatedOpeners > 0 {
		openers := map[string]int{}
		for _, s := range sentences {
			words := util.Tokenize(s)
			if len(words) == 0 {
				continue
			}
			openers[words[0]]++
			if openers[words[0]] >= g.maxRepeatedOpeners {
				return fmt.Errorf("repetitive structure: %d sentences open with %q", openers[words[0]], words[0])
			}
		}
	}
	if !structureOK(text, def.Check) {
		return fmt.Errorf("fails %s structure check", def.Check)
	}
	return nil
}

func structureOK(text, check string) bool {
	switch check {
	case category.CheckPoem:
		return comparisonWord.MatchString(text) || innerPunct.MatchString(text)
	case category.CheckJoke:
		return strings.ContainsAny(text, "?!") || interrogative.MatchString(text)
	case category.CheckWisdom:
		return wisdomWord.MatchString(text)
	default:
		return true
	}
}
