// Option generation: an actor proposes dialogue and action options for the
// negotiator via the model, with deterministic parsing fallbacks.
package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mkaroly/parley/internal/actor"
	"github.com/mkaroly/parley/internal/engine"
)

// maxOptions bounds how many options one generation may return.
const maxOptions = 3

// Completer is the slice of Client the narrator needs.
type Completer interface {
	Complete(system, userPrompt string, maxTokens int) (string, error)
	Enabled() bool
}

// Narrator generates response options for an actor from the game history and
// the current exchange window.
type Narrator struct {
	client      Completer
	promptLimit int
}

// NewNarrator creates a narrator. promptLimit truncates history excerpts in
// prompts; values below 1 disable truncation.
func NewNarrator(client Completer, promptLimit int) *Narrator {
	return &Narrator{client: client, promptLimit: promptLimit}
}

// GenerateOptions asks the model for the actor's next responses. forceAction
// pushes the actor to propose an action instead of more dialogue. The result
// holds at most three options with normalized triplet and attribute
// references.
func (n *Narrator) GenerateOptions(
	p *actor.Profile,
	playerLabel, playerFaction string,
	history []engine.HistoryEntry,
	conversation []engine.ConversationEntry,
	forceAction bool,
) ([]engine.ActionOption, error) {
	if n.client == nil || !n.client.Enabled() {
		return nil, fmt.Errorf("narrator not configured")
	}

	system := n.systemPrompt(p, playerLabel, playerFaction)
	user := n.userPrompt(p, history, conversation, forceAction)

	raw, err := n.client.Complete(system, user, 1000)
	if err != nil {
		return nil, fmt.Errorf("generate options for %s: %w", p.Name(), err)
	}

	options := parseOptions(raw, len(p.Triplets()))
	if len(options) == 0 {
		return nil, fmt.Errorf("no options parsed for %s", p.Name())
	}
	slog.Info("options generated", "actor", p.Name(), "count", len(options))
	return options, nil
}

func (n *Narrator) systemPrompt(p *actor.Profile, playerLabel, playerFaction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s in a negotiation survival game. ", p.DisplayName())
	fmt.Fprintf(&b, "You are having a conversation with %s of the %s faction about the next actions you will personally attempt to take to advance your faction's goals.\n", playerLabel, playerFaction)
	fmt.Fprintf(&b, "Your persona is described below:\n%s\n", p.PersonaText())
	b.WriteString("Ground your thinking in this persona and the faction context below before proposing responses.\n")
	fmt.Fprintf(&b, "**MarkdownContext**\n%s\n**End of MarkdownContext**\n", n.truncate(p.Context()))
	fmt.Fprintf(&b, "Throughout the game you are acting on the following numbered list of triplets, each describing an initial state, the desired end state, and the gap between them:\n%s\n", p.TripletText())
	return b.String()
}

func (n *Narrator) userPrompt(p *actor.Profile, history []engine.HistoryEntry, conversation []engine.ConversationEntry, forceAction bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Previous actions taken by you or other faction representatives:\n%s\n", n.truncate(actor.HistoryText(history)))
	fmt.Fprintf(&b, "The conversation so far:\n%s\n", n.truncate(actor.ConversationText(conversation)))
	if forceAction {
		b.WriteString("The conversation has gone on long enough: you MUST now propose a concrete action (type 'action').\n")
	} else {
		b.WriteString("Provide a single response to continue the conversation. Consider proposing an action, answering a question, or asking one yourself.\n")
	}
	b.WriteString("Proposed actions MUST align with your motivations and capabilities. Prefer actions that clearly work on closing a gap from the numbered triplets (set 'related-triplet' to its index), or mark 'related-triplet' as 'None' otherwise.\n")
	b.WriteString("Return the result as a JSON array with objects in order. Each object must contain the keys 'text', 'type', 'related-triplet', and 'related-attribute'. ")
	b.WriteString("The 'text' field holds the response. The 'type' field is either 'action' or 'chat'. ")
	b.WriteString("The 'related-triplet' field must contain the 1-based index of the triplet primarily addressed, or the string 'None'. ")
	b.WriteString("The 'related-attribute' field must be one of leadership, technology, policy, or network. ")
	b.WriteString("Do not mention the triplets or any of their parts directly. Output only the JSON without additional commentary.")
	return b.String()
}

func (n *Narrator) truncate(s string) string {
	if n.promptLimit < 1 || len(s) <= n.promptLimit {
		return s
	}
	return s[len(s)-n.promptLimit:]
}

// optionPayload mirrors the JSON object shape the prompt asks for.
type optionPayload struct {
	Text             string `json:"text"`
	Type             string `json:"type"`
	RelatedTriplet   any    `json:"related-triplet"`
	RelatedAttribute any    `json:"related-attribute"`
}

var numberedLine = regexp.MustCompile(`^\s*\d+[.)]\s+(.*\S)\s*$`)

// parseOptions extracts options from a model response. It strips code
// fences, accepts either a bare JSON array or an object with an "actions"
// key, and falls back to numbered plain-text lines. tripletCount bounds
// related-triplet normalization.
func parseOptions(raw string, tripletCount int) []engine.ActionOption {
	candidate := stripFences(strings.TrimSpace(raw))

	payloads, ok := decodePayloads(candidate)
	if !ok {
		// Last resort: the array may be embedded in prose.
		if start, end := strings.Index(candidate, "["), strings.LastIndex(candidate, "]"); start != -1 && end > start {
			payloads, ok = decodePayloads(candidate[start : end+1])
		}
	}
	if !ok {
		return numberedFallback(candidate)
	}

	var out []engine.ActionOption
	for _, p := range payloads {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		out = append(out, engine.ActionOption{
			Text:             text,
			Type:             normalizeType(p.Type),
			RelatedTriplet:   normalizeTriplet(p.RelatedTriplet, tripletCount),
			RelatedAttribute: normalizeAttribute(p.RelatedAttribute),
		})
		if len(out) == maxOptions {
			break
		}
	}
	return out
}

func decodePayloads(candidate string) ([]optionPayload, bool) {
	var list []optionPayload
	if err := json.Unmarshal([]byte(candidate), &list); err == nil {
		return list, true
	}
	var wrapper struct {
		Actions []optionPayload `json:"actions"`
	}
	if err := json.Unmarshal([]byte(candidate), &wrapper); err == nil && len(wrapper.Actions) > 0 {
		return wrapper.Actions, true
	}
	var single optionPayload
	if err := json.Unmarshal([]byte(candidate), &single); err == nil && single.Text != "" {
		return []optionPayload{single}, true
	}
	return nil, false
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s
	if idx := strings.Index(body, "\n"); idx != -1 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx != -1 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func numberedFallback(candidate string) []engine.ActionOption {
	var out []engine.ActionOption
	for _, line := range strings.Split(candidate, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, engine.ActionOption{Text: m[1], Type: engine.OptionDialogue})
		if len(out) == maxOptions {
			break
		}
	}
	return out
}

func normalizeType(t string) engine.OptionType {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "action":
		return engine.OptionAction
	default:
		// "chat" and anything unrecognized stay conversational.
		return engine.OptionDialogue
	}
}

// normalizeTriplet returns the 1-based triplet index, or 0 when the value is
// "None", out of range, or unparseable.
func normalizeTriplet(v any, tripletCount int) int {
	var candidate int
	switch t := v.(type) {
	case string:
		cleaned := strings.TrimSpace(t)
		if strings.EqualFold(cleaned, "none") {
			return 0
		}
		n, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0
		}
		candidate = n
	case float64:
		candidate = int(t)
	case int:
		candidate = t
	default:
		return 0
	}
	if candidate < 1 || candidate > tripletCount {
		return 0
	}
	return candidate
}

func normalizeAttribute(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	cleaned := strings.ToLower(strings.TrimSpace(s))
	for _, attr := range actor.Attributes {
		if cleaned == attr {
			return cleaned
		}
	}
	return ""
}
