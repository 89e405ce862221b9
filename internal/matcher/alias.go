package matcher

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

//go:embed aliases.toml
var builtinAliases string

// Team is one franchise and every name the venues use for it.
type Team struct {
	Name    string   `toml:"name"`
	Aliases []string `toml:"aliases"`
}

type aliasFile map[string][]Team

// AliasResolver maps free-text team references to canonical teams, per sport.
type AliasResolver struct {
	teams map[domain.Sport]map[string]*Team // canonical name -> team
	index map[domain.Sport]map[string]string
	// ambiguous aliases name more than one team in a sport and never resolve.
	ambiguous map[domain.Sport]map[string]bool
}

// NewAliasResolver loads the built-in table and then each extra TOML
// document in order. Extra documents may add teams or aliases.
func NewAliasResolver(extra ...string) (*AliasResolver, error) {
	r := &AliasResolver{
		teams:     make(map[domain.Sport]map[string]*Team),
		index:     make(map[domain.Sport]map[string]string),
		ambiguous: make(map[domain.Sport]map[string]bool),
	}
	for i, doc := range append([]string{builtinAliases}, extra...) {
		var f aliasFile
		if _, err := toml.Decode(doc, &f); err != nil {
			return nil, fmt.Errorf("matcher: decode alias table %d: %w", i, err)
		}
		for key, teams := range f {
			sport, ok := domain.ParseSport(key)
			if !ok {
				return nil, fmt.Errorf("matcher: alias table %d: unknown sport %q", i, key)
			}
			for _, t := range teams {
				r.add(sport, t)
			}
		}
	}
	return r, nil
}

// LoadAliasFile reads an operator alias file for NewAliasResolver.
func LoadAliasFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("matcher: read alias file: %w", err)
	}
	return string(b), nil
}

func (r *AliasResolver) add(sport domain.Sport, t Team) {
	if r.teams[sport] == nil {
		r.teams[sport] = make(map[string]*Team)
		r.index[sport] = make(map[string]string)
		r.ambiguous[sport] = make(map[string]bool)
	}
	team, ok := r.teams[sport][t.Name]
	if !ok {
		team = &Team{Name: t.Name}
		r.teams[sport][t.Name] = team
		r.register(sport, t.Name, t.Name)
	}
	for _, a := range t.Aliases {
		if r.register(sport, t.Name, a) {
			team.Aliases = append(team.Aliases, a)
		}
	}
}

func (r *AliasResolver) register(sport domain.Sport, name, alias string) bool {
	key := normalize(alias)
	if key == "" {
		return false
	}
	if r.ambiguous[sport][key] {
		return false
	}
	if owner, ok := r.index[sport][key]; ok {
		if owner != name {
			delete(r.index[sport], key)
			r.ambiguous[sport][key] = true
		}
		return false
	}
	r.index[sport][key] = name
	return true
}

// Resolve maps a label such as "Thunder" or "Oklahoma City" to its team.
func (r *AliasResolver) Resolve(sport domain.Sport, label string) (Team, bool) {
	name, ok := r.index[sport][normalize(label)]
	if !ok {
		return Team{}, false
	}
	return *r.teams[sport][name], true
}

// Mentions reports whether text refers to team by any unambiguous alias.
// Aliases match whole words only, so "LA" never matches inside "Atlanta".
func (r *AliasResolver) Mentions(sport domain.Sport, team Team, text string) bool {
	words := tokenize(text)
	for _, a := range append([]string{team.Name}, team.Aliases...) {
		key := normalize(a)
		if r.index[sport][key] != team.Name {
			continue
		}
		if containsSeq(words, strings.Fields(key)) {
			return true
		}
	}
	return false
}

// WinningOutcome returns the index of the label that names the same team as
// side. It fails with domain.ErrMatchingAmbiguous unless exactly one label
// does.
func (r *AliasResolver) WinningOutcome(sport domain.Sport, side string, labels [2]string) (int, error) {
	sideTeam, ok := r.Resolve(sport, side)
	if !ok {
		return -1, fmt.Errorf("matcher: side %q has no alias: %w", side, domain.ErrMatchingAmbiguous)
	}
	idx := -1
	for i, l := range labels {
		t, ok := r.Resolve(sport, l)
		if !ok || t.Name != sideTeam.Name {
			continue
		}
		if idx >= 0 {
			return -1, fmt.Errorf("matcher: side %q matches both outcomes: %w", side, domain.ErrMatchingAmbiguous)
		}
		idx = i
	}
	if idx < 0 {
		return -1, fmt.Errorf("matcher: side %q matches no outcome of %v: %w", side, labels, domain.ErrMatchingAmbiguous)
	}
	return idx, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(s string) string {
	return strings.Join(tokenize(s), " ")
}

func containsSeq(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(words); i++ {
		for j := range seq {
			if words[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
