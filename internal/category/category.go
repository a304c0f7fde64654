// Package category holds the configuration-driven category table and the
// per-session category rotation.
package category

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"tweetsmith/internal/model"
)

// Structural check names understood by the creativity gate.
const (
	CheckNone   = "none"
	CheckPoem   = "poem"
	CheckJoke   = "joke"
	CheckWisdom = "wisdom"
)

// Definition describes one category: how to prompt for it and which
// structural check its candidates must pass.
type Definition struct {
	Name   model.Category `yaml:"name"`
	Prompt string         `yaml:"prompt"`
	Check  string         `yaml:"check"`
}

// Table is the ordered, immutable set of categories loaded at startup.
type Table struct {
	defs  []Definition
	index map[model.Category]int
}

// NewTable validates defs and builds a Table. Names are upper-cased.
func NewTable(defs []Definition) (*Table, error) {
	if len(defs) == 0 {
		return nil, errors.New("category table is empty")
	}
	t := &Table{index: make(map[model.Category]int, len(defs))}
	for _, d := range defs {
		d.Name = model.Category(strings.ToUpper(strings.TrimSpace(string(d.Name))))
		if d.Name == "" {
			return nil, errors.New("category with empty name")
		}
		if strings.TrimSpace(d.Prompt) == "" {
			return nil, fmt.Errorf("category %s has no prompt", d.Name)
		}
		switch d.Check {
		case "":
			d.Check = CheckNone
		case CheckNone, CheckPoem, CheckJoke, CheckWisdom:
		default:
			return nil, fmt.Errorf("category %s: unknown check %q", d.Name, d.Check)
		}
		if _, dup := t.index[d.Name]; dup {
			return nil, fmt.Errorf("duplicate category %s", d.Name)
		}
		t.index[d.Name] = len(t.defs)
		t.defs = append(t.defs, d)
	}
	return t, nil
}

// Lookup returns the definition for c.
func (t *Table) Lookup(c model.Category) (Definition, bool) {
	i, ok := t.index[c]
	if !ok {
		return Definition{}, false
	}
	return t.defs[i], true
}

// Valid reports whether c is in the table.
func (t *Table) Valid(c model.Category) bool {
	_, ok := t.index[c]
	return ok
}

// Names returns the categories in table order.
func (t *Table) Names() []model.Category {
	out := make([]model.Category, len(t.defs))
	for i, d := range t.defs {
		out[i] = d.Name
	}
	return out
}

// Definitions returns a copy of the table rows.
func (t *Table) Definitions() []Definition {
	return append([]Definition(nil), t.defs...)
}

// Selector picks categories not yet used in the current session.
type Selector struct {
	table *Table
	rng   *rand.Rand
}

// NewSelector returns a selector over table. A nil rng uses a randomly seeded source.
func NewSelector(table *Table, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{table: table, rng: rng}
}

// Next picks uniformly among categories absent from used. When used covers
// the whole table, used is cleared and a new round starts from the full set.
func (s *Selector) Next(used map[model.Category]bool) model.Category {
	names := s.table.Names()
	free := make([]model.Category, 0, len(names))
	for _, n := range names {
		if !used[n] {
			free = append(free, n)
		}
	}
	if len(free) == 0 {
		clear(used)
		free = names
	}
	return free[s.rng.IntN(len(free))]
}

// Defaults is the built-in category table.
func Defaults() []Definition {
	return []Definition{
		{
			Name:   "POEM",
			Prompt: "Write a short, emotional poem or Hindi shayari about love, life, or struggle in under 280 characters.",
			Check:  CheckPoem,
		},
		{
			Name:   "MOTIVATIONAL",
			Prompt: "Create a powerful motivational message that inspires action and determination. Use diverse sentence structures - mix short punchy statements with eloquent metaphors. Avoid clichés and common phrases like 'you can do it' or 'never give up'. Instead, use fresh perspectives, unexpected analogies, or storytelling elements. Focus on themes like growth, courage, persistence, or innovation. Keep it under 280 characters and make it memorable.",
			Check:  CheckNone,
		},
		{
			Name:   "JOKE",
			Prompt: "Craft a clever joke with brilliant wordplay, puns, or double meanings that is funny, witty in under 280 characters.",
			Check:  CheckJoke,
		},
		{
			Name:   "INSPIRATIONAL",
			Prompt: "Create a unique and powerful inspirational message about personal growth, resilience, or self-discovery. Be creative with different openings - avoid starting with 'Embrace'. Mix metaphors, use varied narrative voices, and explore different emotional tones while staying authentic and meaningful. Keep it under 280 characters.",
			Check:  CheckNone,
		},
		{
			Name:   "GEETA",
			Prompt: "Share profound life lessons and principles inspired by the wisdom of the Bhagavad Gita. Focus on teachings about self-discipline, resilience, karma, duty, detachment, and inner peace. Express the essence of these teachings in a relatable and practical way without directly quoting or referencing specific verses or figures in under 280 characters.",
			Check:  CheckWisdom,
		},
	}
}
