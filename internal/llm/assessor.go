// Progress assessment: the game master scores every faction triplet after an
// action lands.
package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
)

// Assessor scores each actor's triplets against the objective script and the
// performed-action history. Results feed Session.ApplyScores.
type Assessor struct {
	client Completer
}

// NewAssessor creates an assessor over the given client.
func NewAssessor(client Completer) *Assessor {
	return &Assessor{client: client}
}

// Assess returns a map of progress key to per-triplet scores in [0,100].
// Actors whose assessment fails are omitted with a warning; the session
// tolerates partial updates. With parallel set, actors are scored
// concurrently.
func (a *Assessor) Assess(profiles []*actor.Profile, objective string, history []engine.HistoryEntry, parallel bool) (map[string][]int, error) {
	if a.client == nil || !a.client.Enabled() {
		return nil, fmt.Errorf("assessor not configured")
	}

	actorList := make([]string, 0, len(profiles))
	for _, p := range profiles {
		actorList = append(actorList, p.Name())
	}
	historyText := actor.HistoryText(history)

	results := make(map[string][]int, len(profiles))
	if !parallel {
		for _, p := range profiles {
			scores, err := a.assessOne(p, strings.Join(actorList, ", "), objective, historyText)
			if err != nil {
				slog.Warn("assessment failed", "actor", p.Name(), "error", err)
				continue
			}
			results[p.ProgressKey()] = scores
		}
		return results, nil
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, p := range profiles {
		wg.Add(1)
		go func(p *actor.Profile) {
			defer wg.Done()
			scores, err := a.assessOne(p, strings.Join(actorList, ", "), objective, historyText)
			if err != nil {
				slog.Warn("assessment failed", "actor", p.Name(), "error", err)
				return
			}
			mu.Lock()
			results[p.ProgressKey()] = scores
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results, nil
}

func (a *Assessor) assessOne(p *actor.Profile, actorList, objective, historyText string) ([]int, error) {
	prompt := fmt.Sprintf(
		"You are the Game Master for a negotiation survival game. "+
			"The player is interacting with the characters and convinces them to take actions. "+
			"You assess the following characters' 'initial state - end state - gap' triplets with a 0-100 integer: %s, "+
			"based on the baseline script and the performed actions.\n"+
			"The baseline script: %s\n"+
			"Performed actions: %s\n"+
			"Assess all triplets of the character %s.\n%s\n%s\n"+
			"Output ONLY an ordered list of 0-100 integers, one for each triplet, line by line.",
		actorList, objective, historyText, p.DisplayName(), p.Context(), p.TripletText(),
	)

	raw, err := a.client.Complete("", prompt, 400)
	if err != nil {
		return nil, fmt.Errorf("assess %s: %w", p.Name(), err)
	}

	scores := parseScores(raw, len(p.Triplets()))
	slog.Debug("assessment parsed", "actor", p.Name(), "scores", scores)
	return scores, nil
}

// parseScores pulls one integer per line, clamped to [0,100], stopping at
// limit. Lines without digits are skipped.
func parseScores(raw string, limit int) []int {
	var scores []int
	for _, line := range strings.Split(raw, "\n") {
		var digits strings.Builder
		for _, r := range strings.TrimSpace(line) {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			continue
		}
		n := 0
		for _, r := range digits.String() {
			n = n*10 + int(r-'0')
			if n > 100 {
				n = 100
				break
			}
		}
		scores = append(scores, n)
		if len(scores) == limit {
			break
		}
	}
	return scores
}

// StaticAssessor returns the same scores on every call. Stand-in for games
// running without a model.
type StaticAssessor map[string][]int

// Assess returns a copy of the configured scores.
func (s StaticAssessor) Assess(profiles []*actor.Profile, objective string, history []engine.HistoryEntry, parallel bool) (map[string][]int, error) {
	out := make(map[string][]int, len(s))
	for k, v := range s {
		scores := make([]int, len(v))
		copy(scores, v)
		out[k] = scores
	}
	return out, nil
}
