// Package scenario loads game rosters from YAML: the objective script,
// faction specs with their state triplets, character personas and the seed
// credibility matrix.
package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
)

// Scenario is a fully loaded roster ready to seed a session.
type Scenario struct {
	Name          string
	Objective     string
	PlayerFaction string
	Credibility   map[string]map[string]int
	Profiles      []*actor.Profile
}

// Actors returns the profiles as engine actors.
func (s *Scenario) Actors() []engine.Actor {
	out := make([]engine.Actor, len(s.Profiles))
	for i, p := range s.Profiles {
		out[i] = p
	}
	return out
}

type factionSpec struct {
	MarkdownContext string    `yaml:"MarkdownContext"`
	InitialStates   []string  `yaml:"initial_states"`
	EndStates       []string  `yaml:"end_states"`
	Gaps            []gapSpec `yaml:"gaps"`
}

// gapSpec accepts both a bare string and a mapping with explanation and
// severity (or its older "size" spelling).
type gapSpec struct {
	Explanation string
	Severity    string
}

func (g *gapSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		g.Explanation = node.Value
		return nil
	}
	var m struct {
		Explanation string `yaml:"explanation"`
		Severity    string `yaml:"severity"`
		Size        string `yaml:"size"`
	}
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("decode gap: %w", err)
	}
	g.Explanation = m.Explanation
	g.Severity = m.Severity
	if g.Severity == "" {
		g.Severity = m.Size
	}
	return nil
}

type personaSpec struct {
	Faction     string `yaml:"faction"`
	Background  string `yaml:"background"`
	Perks       string `yaml:"perks"`
	Weaknesses  string `yaml:"weaknesses"`
	Motivations string `yaml:"motivations"`
	Leadership  int    `yaml:"leadership"`
	Technology  int    `yaml:"technology"`
	Policy      int    `yaml:"policy"`
	Network     int    `yaml:"network"`
}

type fileSpec struct {
	Objective     string                    `yaml:"objective"`
	PlayerFaction string                    `yaml:"player_faction"`
	Credibility   map[string]map[string]int `yaml:"credibility"`
	Factions      map[string]factionSpec    `yaml:"factions"`
	Characters    map[string]personaSpec    `yaml:"characters"`
}

// Load reads a scenario file. The scenario name is the file stem. Files may
// use the full layout (objective/factions/characters/credibility) or the
// legacy one: a top-level map of faction name to spec.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var fs fileSpec
	if err := yaml.Unmarshal(raw, &fs); err != nil || len(fs.Factions) == 0 {
		legacy := map[string]factionSpec{}
		if legacyErr := yaml.Unmarshal(raw, &legacy); legacyErr != nil || len(legacy) == 0 {
			if err == nil {
				err = fmt.Errorf("no factions defined")
			}
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
		fs.Factions = legacy
	}

	s := &Scenario{
		Name:          strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Objective:     fs.Objective,
		PlayerFaction: fs.PlayerFaction,
		Credibility:   fs.Credibility,
	}

	if len(fs.Characters) == 0 {
		// One representative per faction, named after it.
		for _, name := range sortedKeys(fs.Factions) {
			spec := fs.Factions[name]
			s.Profiles = append(s.Profiles, actor.NewProfile(
				name, spec.MarkdownContext, spec.triplets(), actor.Persona{Faction: name}))
		}
		return s, nil
	}

	for _, name := range sortedKeys(fs.Characters) {
		persona := fs.Characters[name]
		spec, ok := fs.Factions[persona.Faction]
		if !ok {
			slog.Warn("character references unknown faction",
				"character", name, "faction", persona.Faction)
		}
		s.Profiles = append(s.Profiles, actor.NewProfile(
			name, spec.MarkdownContext, spec.triplets(), actor.Persona{
				Faction:     persona.Faction,
				Background:  persona.Background,
				Perks:       persona.Perks,
				Weaknesses:  persona.Weaknesses,
				Motivations: persona.Motivations,
				Attributes: map[string]int{
					"leadership": persona.Leadership,
					"technology": persona.Technology,
					"policy":     persona.Policy,
					"network":    persona.Network,
				},
			}))
	}
	return s, nil
}

// triplets zips the three state lists to their shortest common length.
func (f factionSpec) triplets() []engine.Triplet {
	n := len(f.InitialStates)
	if len(f.EndStates) < n {
		n = len(f.EndStates)
	}
	if len(f.Gaps) < n {
		n = len(f.Gaps)
	}
	out := make([]engine.Triplet, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, engine.Triplet{
			Initial:  f.InitialStates[i],
			End:      f.EndStates[i],
			Gap:      f.Gaps[i].Explanation,
			Severity: f.Gaps[i].Severity,
		})
	}
	return out
}

// List returns the scenario names (file stems) available under dir, sorted.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// Find resolves a scenario name to its file path, matching case
// insensitively against the stems under dir.
func Find(dir, name string) (string, error) {
	names, err := List(dir)
	if err != nil {
		return "", err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, n := range names {
		if strings.ToLower(n) == want {
			return filepath.Join(dir, n+".yaml"), nil
		}
	}
	return "", fmt.Errorf("scenario %q not found in %s", name, dir)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
