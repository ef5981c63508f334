// Package api serves one negotiation game over HTTP.
// GET endpoints are public read-only views of the session state.
// POST endpoints drive play; /reset additionally requires a bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/config"
	"github.com/mkaroly/parley/internal/engine"
	"github.com/mkaroly/parley/internal/entropy"
	"github.com/mkaroly/parley/internal/persistence"
	"github.com/mkaroly/parley/internal/player"
	"github.com/mkaroly/parley/internal/scenario"
)

// Server runs a single game session over HTTP. The session is owned by the
// server's mutex; every handler that touches it serializes through that lock.
type Server struct {
	Scenario  *scenario.Scenario
	Game      config.Game
	Generator player.OptionGenerator // nil = option generation disabled
	Assessor  player.ScoreAssessor   // nil = progress never updates
	DB        *persistence.DB        // nil = no recording
	Monitor   *persistence.Monitor   // nil = no activity tracking
	Entropy   entropy.Source         // nil = crypto-seeded dice
	Port      int
	AdminKey  string // Bearer token for /reset. Empty = reset disabled.

	mu        sync.Mutex
	session   *engine.Session
	recorder  *persistence.Recorder
	sessionID string
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	// Option generation burns model tokens; budget it per client.
	optionsLimiter := NewRateLimiter(60, time.Hour)

	mux := http.NewServeMux()

	// Public read-only views.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/factions", s.handleFactions)
	mux.HandleFunc("/api/v1/progress", s.handleProgress)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/actors", s.handleActors)
	mux.HandleFunc("/api/v1/conversation/", s.handleConversation)

	// Game-play endpoints (POST).
	mux.HandleFunc("/api/v1/options", RateLimitMiddleware(optionsLimiter, s.handleOptions))
	mux.HandleFunc("/api/v1/turn", s.handleTurn)
	mux.HandleFunc("/api/v1/reroll", s.handleReroll)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.handleReset))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "llm", s.Generator != nil)

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins
// (e.g. "https://parley.example.com"). Localhost dev servers are always
// allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no PARLEY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// sessionLocked returns the current session, creating one on first use.
// Callers must hold s.mu.
func (s *Server) sessionLocked() *engine.Session {
	if s.session == nil {
		s.resetLocked()
	}
	return s.session
}

// resetLocked replaces the session with a fresh one. Callers must hold s.mu.
func (s *Server) resetLocked() {
	if s.sessionID != "" && s.Monitor != nil {
		s.Monitor.MarkClosed(s.sessionID)
	}

	cfg := engine.DefaultConfig()
	cfg.Objective = s.Scenario.Objective
	if s.Scenario.PlayerFaction != "" {
		cfg.PlayerFaction = s.Scenario.PlayerFaction
	}
	if s.Game.WinThreshold > 0 {
		cfg.WinThreshold = s.Game.WinThreshold
	}
	if s.Game.MaxRounds > 0 {
		cfg.MaxRounds = s.Game.MaxRounds
	}
	if s.Game.RollSuccessThreshold > 0 {
		cfg.RollThreshold = s.Game.RollSuccessThreshold
	}
	if s.Game.ForceActionAfter > 0 {
		cfg.ForceActionAfter = s.Game.ForceActionAfter
	}
	if s.Game.ActionTimeCostYears > 0 {
		cfg.ActionTimeCostYears = s.Game.ActionTimeCostYears
	}

	rng := s.Entropy
	if rng == nil {
		seed, err := entropy.NewSeed()
		if err != nil {
			seed = time.Now().UnixNano()
		}
		rng = entropy.NewSeeded(seed)
	}
	s.session = engine.NewSession(cfg, s.Scenario.Actors(), s.Scenario.Credibility, rng)
	s.sessionID = uuid.NewString()

	s.recorder = nil
	if s.DB != nil {
		s.recorder = persistence.NewRecorder(s.DB, "api session")
		s.recorder.OnGameStart(s.session, "api", s.Scenario.Name)
	}
	if s.Monitor != nil {
		s.Monitor.Touch(s.sessionID)
	}
	slog.Info("game session started", "scenario", s.Scenario.Name, "session", s.sessionID)
}

// touchLocked marks the session active for the backup monitor.
// Callers must hold s.mu.
func (s *Server) touchLocked() {
	if s.Monitor != nil {
		s.Monitor.Touch(s.sessionID)
	}
}

// findProfile resolves an actor request field against the roster, matching
// the character name first and the faction as a fallback, case-insensitively.
func (s *Server) findProfile(name string) *actor.Profile {
	for _, p := range s.Scenario.Profiles {
		if strings.EqualFold(p.Name(), name) {
			return p
		}
	}
	for _, p := range s.Scenario.Profiles {
		if strings.EqualFold(p.Faction(), name) {
			return p
		}
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()
	s.touchLocked()

	cfg := sess.Config()
	writeJSON(w, map[string]any{
		"scenario":             s.Scenario.Name,
		"objective":            sess.Objective(),
		"player_faction":       sess.PlayerFaction(),
		"rounds":               sess.Rounds(),
		"max_rounds":           cfg.MaxRounds,
		"elapsed_years":        sess.ElapsedYears(),
		"win_threshold":        cfg.WinThreshold,
		"final_weighted_score": sess.FinalWeightedScore(),
		"won":                  sess.Won(),
		"finished":             sess.Finished(),
		"llm_enabled":          s.Generator != nil,
	})
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()

	writeJSON(w, map[string]any{
		"player_faction": sess.PlayerFaction(),
		"credibility":    sess.Credibility().Snapshot(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()

	type factionProgress struct {
		Faction       string `json:"faction"`
		Label         string `json:"label"`
		Scores        []int  `json:"scores"`
		Weights       []int  `json:"weights"`
		WeightedScore int    `json:"weighted_score"`
	}

	progress := make([]factionProgress, 0, len(s.Scenario.Profiles))
	for _, p := range s.Scenario.Profiles {
		key := p.ProgressKey()
		progress = append(progress, factionProgress{
			Faction:       key,
			Label:         p.ProgressLabel(),
			Scores:        sess.Progress().Scores(key),
			Weights:       sess.Progress().Weights(key),
			WeightedScore: sess.WeightedScore(key),
		})
	}

	writeJSON(w, map[string]any{
		"factions":             progress,
		"final_weighted_score": sess.FinalWeightedScore(),
		"win_threshold":        sess.Config().WinThreshold,
		"won":                  sess.Won(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()

	writeJSON(w, map[string]any{
		"history":     sess.History(),
		"resolutions": sess.Resolutions(),
	})
}

func (s *Server) handleActors(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()

	type tripletEntry struct {
		Initial  string `json:"initial"`
		End      string `json:"end"`
		Gap      string `json:"gap"`
		Severity string `json:"severity"`
	}
	type actorEntry struct {
		Name        string         `json:"name"`
		Faction     string         `json:"faction"`
		DisplayName string         `json:"display_name"`
		Attributes  map[string]int `json:"attributes"`
		Triplets    []tripletEntry `json:"triplets"`
		Credibility int            `json:"credibility"`
	}

	actors := make([]actorEntry, 0, len(s.Scenario.Profiles))
	for _, p := range s.Scenario.Profiles {
		attrs := make(map[string]int, len(actor.Attributes))
		for _, a := range actor.Attributes {
			attrs[a] = p.AttributeScore(a)
		}
		triplets := make([]tripletEntry, 0, len(p.Triplets()))
		for _, t := range p.Triplets() {
			triplets = append(triplets, tripletEntry{
				Initial:  t.Initial,
				End:      t.End,
				Gap:      t.Gap,
				Severity: t.Severity,
			})
		}
		actors = append(actors, actorEntry{
			Name:        p.Name(),
			Faction:     p.Faction(),
			DisplayName: p.DisplayName(),
			Attributes:  attrs,
			Triplets:    triplets,
			Credibility: sess.PartnerCredibility(p),
		})
	}
	writeJSON(w, map[string]any{"actors": actors})
}

// handleConversation returns the exchange window for one actor:
// GET /api/v1/conversation/:actor.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/conversation/"), "/")
	if name == "" {
		http.Error(w, "actor name required", http.StatusBadRequest)
		return
	}
	p := s.findProfile(name)
	if p == nil {
		http.Error(w, "unknown actor", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()

	writeJSON(w, map[string]any{
		"actor":        p.Name(),
		"conversation": sess.ConversationHistory(p),
		"force_action": sess.ShouldForceAction(p),
	})
}

type optionsRequest struct {
	Actor string `json:"actor"`
}

// handleOptions generates the actor's next responses and returns the full
// option list the player may answer with.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Generator == nil {
		http.Error(w, "option generation disabled (no API key configured)", http.StatusServiceUnavailable)
		return
	}

	var req optionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p := s.findProfile(req.Actor)
	if p == nil {
		http.Error(w, "unknown actor", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()
	s.touchLocked()

	if sess.Finished() {
		http.Error(w, "game over", http.StatusConflict)
		return
	}

	cfg := sess.Config()
	generated, err := s.Generator.GenerateOptions(
		p, cfg.PlayerLabel, cfg.PlayerFaction,
		sess.History(), sess.ConversationHistory(p),
		sess.ShouldForceAction(p),
	)
	if err != nil {
		slog.Error("option generation failed", "actor", p.Name(), "error", err)
		http.Error(w, "option generation failed", http.StatusBadGateway)
		return
	}
	spoken := sess.LogResponses(p, generated)

	options := sess.AvailableActions(p)
	for _, o := range generated {
		if !o.IsAction() {
			options = append(options, o)
		}
	}

	writeJSON(w, map[string]any{
		"actor":        p.Name(),
		"said":         spoken,
		"options":      options,
		"force_action": sess.ShouldForceAction(p),
	})
}

type turnRequest struct {
	Actor   string              `json:"actor"`
	Option  engine.ActionOption `json:"option"`
	Targets []string            `json:"targets,omitempty"`
}

// handleTurn plays one selected option. Dialogue is logged into the actor's
// conversation; an action is resolved, assessed and recorded.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Option.Text) == "" {
		http.Error(w, "option text required", http.StatusBadRequest)
		return
	}
	p := s.findProfile(req.Actor)
	if p == nil {
		http.Error(w, "unknown actor", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()
	s.touchLocked()

	if sess.Finished() {
		http.Error(w, "game over", http.StatusConflict)
		return
	}

	sess.LogPlayerResponse(p, req.Option)
	if !req.Option.IsAction() {
		writeJSON(w, map[string]any{
			"performed":    false,
			"conversation": sess.ConversationHistory(p),
		})
		return
	}

	round := sess.Rounds() + 1
	res, err := sess.RecordAction(p, req.Option, req.Targets...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.assessLocked()
	s.recordTurnLocked(round)

	reply := map[string]any{
		"performed":            true,
		"resolution":           res,
		"final_weighted_score": sess.FinalWeightedScore(),
		"won":                  sess.Won(),
		"finished":             sess.Finished(),
	}
	if !res.Success {
		affordable, shortfalls := sess.RerollAffordability(p, req.Option)
		reply["reroll_cost"] = sess.NextRerollCost(p, req.Option)
		reply["reroll_affordable"] = affordable
		if len(shortfalls) > 0 {
			reply["reroll_shortfalls"] = shortfalls
		}
	}
	s.finishIfOverLocked()
	writeJSON(w, reply)
}

type rerollRequest struct {
	Actor  string              `json:"actor"`
	Option engine.ActionOption `json:"option"`
}

// handleReroll retries the actor's last failed action, paying the rising
// credibility cost.
func (s *Server) handleReroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rerollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p := s.findProfile(req.Actor)
	if p == nil {
		http.Error(w, "unknown actor", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked()
	s.touchLocked()

	affordable, shortfalls := sess.RerollAffordability(p, req.Option)
	if !affordable {
		writeJSON(w, map[string]any{
			"performed":  false,
			"cost":       sess.NextRerollCost(p, req.Option),
			"shortfalls": shortfalls,
		})
		return
	}

	round := sess.Rounds()
	res, err := sess.RerollAction(p, req.Option)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.assessLocked()
	s.recordTurnLocked(round)

	reply := map[string]any{
		"performed":            true,
		"resolution":           res,
		"final_weighted_score": sess.FinalWeightedScore(),
		"won":                  sess.Won(),
		"finished":             sess.Finished(),
	}
	if !res.Success {
		reply["reroll_cost"] = sess.NextRerollCost(p, req.Option)
	}
	s.finishIfOverLocked()
	writeJSON(w, reply)
}

// handleReset abandons the current game and starts a fresh session.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked("reset")
	s.resetLocked()
	writeJSON(w, map[string]any{
		"scenario": s.Scenario.Name,
		"rounds":   s.session.Rounds(),
	})
}

// assessLocked reruns the external assessment and applies the scores.
// Failures leave the ledger unchanged. Callers must hold s.mu.
func (s *Server) assessLocked() {
	if s.Assessor == nil {
		return
	}
	scores, err := s.Assessor.Assess(s.Scenario.Profiles, s.session.Objective(), s.session.History(), true)
	if err != nil {
		slog.Warn("assessment unavailable, progress unchanged", "error", err)
		return
	}
	s.session.ApplyScores(scores)
}

// recordTurnLocked persists the latest resolutions. Callers must hold s.mu.
func (s *Server) recordTurnLocked(round int) {
	if s.recorder == nil {
		return
	}
	s.recorder.AfterTurn(s.session, round)
}

// finishIfOverLocked closes out the session record once the game ends.
// Callers must hold s.mu.
func (s *Server) finishIfOverLocked() {
	if !s.session.Finished() {
		return
	}
	result := "loss"
	if s.session.Won() {
		result = "victory"
	}
	s.closeLocked(result)
}

func (s *Server) closeLocked(result string) {
	if s.session == nil {
		return
	}
	if s.recorder != nil {
		s.recorder.OnGameEnd(s.session, result, s.session.Won())
	}
	if s.Monitor != nil {
		s.Monitor.MarkClosed(s.sessionID)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
