package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/config"
	"github.com/mkaroly/parley/internal/engine"
	"github.com/mkaroly/parley/internal/entropy"
	"github.com/mkaroly/parley/internal/llm"
	"github.com/mkaroly/parley/internal/scenario"
)

type stubGenerator struct {
	options []engine.ActionOption
	err     error
	calls   int
}

func (g *stubGenerator) GenerateOptions(p *actor.Profile, playerLabel, playerFaction string,
	history []engine.HistoryEntry, conversation []engine.ConversationEntry,
	forceAction bool) ([]engine.ActionOption, error) {
	g.calls++
	return g.options, g.err
}

func testScenario() *scenario.Scenario {
	profile := actor.NewProfile("Helena Vale", "A seasoned minister.",
		[]engine.Triplet{{Initial: "Deadlock", End: "Treaty signed", Gap: "No draft text", Severity: "Small"}},
		actor.Persona{
			Faction:    "Governments",
			Attributes: map[string]int{"policy": 8},
		})
	return &scenario.Scenario{
		Name:          "summit",
		Objective:     "Sign the accord.",
		PlayerFaction: "CivilSociety",
		Profiles:      []*actor.Profile{profile},
	}
}

func newTestServer(roll int) *Server {
	return &Server{
		Scenario: testScenario(),
		Game:     config.DefaultGame(),
		Assessor: llm.StaticAssessor{"Governments": {90}},
		Entropy:  entropy.Fixed(roll),
	}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var decoded map[string]any
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	}
	return rec, decoded
}

func TestStatusReportsFreshSession(t *testing.T) {
	s := newTestServer(20)
	rec, got := doJSON(t, s.handleStatus, http.MethodGet, "/api/v1/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "summit", got["scenario"])
	assert.Equal(t, "CivilSociety", got["player_faction"])
	assert.Equal(t, float64(0), got["rounds"])
	assert.Equal(t, false, got["finished"])
	assert.Equal(t, false, got["llm_enabled"])
}

func TestActorsListsRosterWithCredibility(t *testing.T) {
	s := newTestServer(20)
	rec, got := doJSON(t, s.handleActors, http.MethodGet, "/api/v1/actors", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	actors := got["actors"].([]any)
	require.Len(t, actors, 1)
	first := actors[0].(map[string]any)
	assert.Equal(t, "Helena Vale", first["name"])
	assert.Equal(t, "Helena Vale (Governments faction)", first["display_name"])
	assert.Equal(t, float64(50), first["credibility"])
}

func TestFactionsExposesTrustSnapshot(t *testing.T) {
	s := newTestServer(20)
	rec, got := doJSON(t, s.handleFactions, http.MethodGet, "/api/v1/factions", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cred := got["credibility"].(map[string]any)
	row := cred["CivilSociety"].(map[string]any)
	assert.Equal(t, float64(100), row["CivilSociety"])
	assert.Equal(t, float64(50), row["Governments"])
}

func TestOptionsRequiresGenerator(t *testing.T) {
	s := newTestServer(20)
	rec, _ := doJSON(t, s.handleOptions, http.MethodPost, "/api/v1/options",
		optionsRequest{Actor: "Helena Vale"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptionsLogsResponsesAndMergesActions(t *testing.T) {
	s := newTestServer(20)
	s.Generator = &stubGenerator{options: []engine.ActionOption{
		{Text: "We could talk terms.", Type: engine.OptionDialogue},
		{Text: "Push the draft through committee.", Type: engine.OptionAction},
	}}

	rec, got := doJSON(t, s.handleOptions, http.MethodPost, "/api/v1/options",
		optionsRequest{Actor: "Helena Vale"})

	require.Equal(t, http.StatusOK, rec.Code)
	options := got["options"].([]any)
	require.Len(t, options, 2)

	// The action is cached and the dialogue entered the conversation.
	rec, got = doJSON(t, s.handleConversation, http.MethodGet, "/api/v1/conversation/Helena%20Vale", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, got["conversation"])
}

func TestConversationUnknownActor(t *testing.T) {
	s := newTestServer(20)
	rec, _ := doJSON(t, s.handleConversation, http.MethodGet, "/api/v1/conversation/Nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTurnDialogueDoesNotResolve(t *testing.T) {
	s := newTestServer(20)
	rec, got := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", turnRequest{
		Actor:  "Helena Vale",
		Option: engine.ActionOption{Text: "Tell me more.", Type: engine.OptionDialogue},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, got["performed"])

	_, status := doJSON(t, s.handleStatus, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, float64(0), status["rounds"])
}

func TestTurnActionResolvesAndAssesses(t *testing.T) {
	s := newTestServer(20)
	rec, got := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", turnRequest{
		Actor:  "Helena Vale",
		Option: engine.ActionOption{Text: "Push the draft.", Type: engine.OptionAction},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, got["performed"])
	res := got["resolution"].(map[string]any)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, float64(90), got["final_weighted_score"])
	assert.Equal(t, true, got["won"])
	assert.Equal(t, true, got["finished"])
}

func TestTurnRejectsUnknownActorAndEmptyOption(t *testing.T) {
	s := newTestServer(20)

	rec, _ := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", turnRequest{
		Actor:  "Nobody",
		Option: engine.ActionOption{Text: "hi", Type: engine.OptionDialogue},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", turnRequest{Actor: "Helena Vale"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnAfterGameOverConflicts(t *testing.T) {
	s := newTestServer(20)
	action := turnRequest{
		Actor:  "Helena Vale",
		Option: engine.ActionOption{Text: "Push the draft.", Type: engine.OptionAction},
	}
	rec, _ := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", action)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", action)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRerollAfterFailedContestedAction(t *testing.T) {
	s := newTestServer(1)
	s.Assessor = nil
	option := engine.ActionOption{Text: "Force a vote.", Type: engine.OptionAction, RelatedTriplet: 1}

	rec, got := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn",
		turnRequest{Actor: "Helena Vale", Option: option})
	require.Equal(t, http.StatusOK, rec.Code)
	res := got["resolution"].(map[string]any)
	require.Equal(t, false, res["success"])
	assert.Equal(t, float64(10), got["reroll_cost"])
	assert.Equal(t, true, got["reroll_affordable"])

	rec, got = doJSON(t, s.handleReroll, http.MethodPost, "/api/v1/reroll",
		rerollRequest{Actor: "Helena Vale", Option: option})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, got["performed"])
	res = got["resolution"].(map[string]any)
	assert.Equal(t, float64(1), res["rerolls"])
}

func TestRerollQuoteMatchesChargedTargets(t *testing.T) {
	s := newTestServer(1)
	s.Assessor = nil
	s.Scenario.Credibility = map[string]map[string]int{"CivilSociety": {"Regulators": 10}}

	// The contested penalty drains the explicit target to zero, so the
	// quoted affordability must track that target, not the actor's faction.
	option := engine.ActionOption{Text: "Lean on the regulators.", Type: engine.OptionAction, RelatedTriplet: 1}
	rec, got := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn",
		turnRequest{Actor: "Helena Vale", Option: option, Targets: []string{"Regulators"}})
	require.Equal(t, http.StatusOK, rec.Code)
	res := got["resolution"].(map[string]any)
	require.Equal(t, false, res["success"])
	assert.Equal(t, false, got["reroll_affordable"])

	rec, got = doJSON(t, s.handleReroll, http.MethodPost, "/api/v1/reroll",
		rerollRequest{Actor: "Helena Vale", Option: option})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, got["performed"])
	shortfalls := got["shortfalls"].([]any)
	require.Len(t, shortfalls, 1)
	assert.Equal(t, "Regulators", shortfalls[0].(map[string]any)["target"])
}

func TestRerollWithoutFailureRejected(t *testing.T) {
	s := newTestServer(20)
	rec, _ := doJSON(t, s.handleReroll, http.MethodPost, "/api/v1/reroll", rerollRequest{
		Actor:  "Helena Vale",
		Option: engine.ActionOption{Text: "Force a vote.", Type: engine.OptionAction},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestResetRequiresAdminToken(t *testing.T) {
	s := newTestServer(20)
	handler := s.adminOnly(s.handleReset)

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/v1/reset", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.AdminKey = "secret"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reset", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/reset", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetStartsFreshSession(t *testing.T) {
	s := newTestServer(20)
	s.AdminKey = "secret"

	rec, _ := doJSON(t, s.handleTurn, http.MethodPost, "/api/v1/turn", turnRequest{
		Actor:  "Helena Vale",
		Option: engine.ActionOption{Text: "Push the draft.", Type: engine.OptionAction},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reset", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	s.adminOnly(s.handleReset)(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, status := doJSON(t, s.handleStatus, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, float64(0), status["rounds"])
	assert.Equal(t, false, status["finished"])
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimiterBlocksAfterBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
	assert.Positive(t, rl.RetryAfter("1.2.3.4"))
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	var hits int
	handler := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/options", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	rec := httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, hits)
}
