package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"aigent/internal/llm"
	"aigent/internal/memtier"
)

type reflectionBelief struct {
	Claim      string  `json:"claim"`
	Confidence float32 `json:"confidence"`
}

type reflectionOutput struct {
	Beliefs     []reflectionBelief `json:"beliefs"`
	Reflections []string           `json:"reflections"`
}

const (
	maxInlineBeliefs     = 3
	maxInlineReflections = 2
	defaultBeliefConfidence = 0.65
)

// InlineReflect asks the LLM, as a silent memory analyst, to extract up to
// 3 new beliefs and 2 reflections from the just-completed exchange, persists
// them, and returns the BackendEvents announcing what it recorded. Grounded
// on original_source/crates/runtime/src/runtime/reflection.rs.
func (rt *Runtime) InlineReflect(ctx context.Context, mem *memtier.Manager, userMessage, assistantReply string) []BackendEvent {
	p := fmt.Sprintf(
		"You are a silent memory analyst. Read the exchange below and extract durable facts.\n"+
			"Respond ONLY with JSON: {\"beliefs\":[{\"claim\":\"...\",\"confidence\":0.0}],\"reflections\":[\"...\"]}\n"+
			"- At most %d beliefs: stable facts or preferences about the user worth remembering long-term.\n"+
			"- At most %d reflections: a short meta-observation about how the conversation is going.\n"+
			"- If nothing is worth recording, respond {\"beliefs\":[],\"reflections\":[]}.\n\n"+
			"USER: %s\nASSISTANT: %s\n\nJSON RESPONSE:",
		maxInlineBeliefs, maxInlineReflections, userMessage, assistantReply)

	_, raw, err := rt.router.ChatWithFallback(ctx, rt.primary(), p)
	if err != nil {
		slog.Debug("inline_reflect: llm unavailable", "err", err)
		return nil
	}

	var out reflectionOutput
	if !llm.ExtractJSONOutput(raw, &out) {
		return nil
	}

	var events []BackendEvent

	for i, b := range out.Beliefs {
		if i >= maxInlineBeliefs || b.Claim == "" {
			continue
		}
		confidence := b.Confidence
		if confidence <= 0 {
			confidence = defaultBeliefConfidence
		}
		if _, err := mem.RecordBelief(b.Claim, confidence); err != nil {
			slog.Warn("inline_reflect: failed to persist belief", "err", err)
			continue
		}
		events = append(events, EventBeliefAdded(b.Claim, confidence))
	}

	for i, r := range out.Reflections {
		if i >= maxInlineReflections || r == "" {
			continue
		}
		if _, err := mem.Record(memtier.Reflective, r, "inline-reflection"); err != nil {
			slog.Warn("inline_reflect: failed to persist reflection", "err", err)
			continue
		}
		events = append(events, EventReflectionInsight(r))
	}

	return events
}

// ProactiveOutput is the decision returned by RunProactiveCheck: whether to
// emit an unprompted message, and how urgent it is.
type ProactiveOutput struct {
	Action  string
	Message string
	Urgency float32
}

type proactiveDecision struct {
	Action  *string  `json:"action"`
	Message *string  `json:"message"`
	Urgency *float32 `json:"urgency"`
}

// RunProactiveCheck asks the LLM whether anything in memory warrants an
// unprompted message right now (a stale follow-up, an upcoming deadline, an
// open thread worth circling back on). No Rust reference implementation for
// this method was present in the retrieved original source; this is
// designed fresh from the ProactiveOutput struct shape
// (original_source/crates/runtime/src/agent_loop.rs) and the surrounding
// call contract in server/sleep.rs's spawn_proactive_task, following the
// same ask-the-LLM-then-extract-JSON pattern as InlineReflect/MaybeToolCall.
func (rt *Runtime) RunProactiveCheck(ctx context.Context, mem *memtier.Manager) *ProactiveOutput {
	followUps := mem.PendingFollowUpIDs()
	beliefs := mem.AllBeliefs()
	stats := mem.Stats()

	var followUpBlock string
	for _, f := range followUps {
		followUpBlock += "- " + f.Content + "\n"
	}
	if followUpBlock == "" {
		followUpBlock = "(none)\n"
	}

	p := fmt.Sprintf(
		"You are deciding whether to send the user an unprompted message right now, with no new user "+
			"input to react to. Be conservative: most checks should result in no_action.\n"+
			"Respond ONLY with JSON: {\"action\":\"message\"|\"no_action\",\"message\":\"...\",\"urgency\":0.0}\n"+
			"Only choose \"message\" if a pending follow-up is overdue, or a durable belief implies something "+
			"time-sensitive the user would want flagged.\n\n"+
			"PENDING FOLLOW-UPS:\n%s\nKNOWN BELIEFS: %d\nTOTAL MEMORY ENTRIES: %d\n\nJSON RESPONSE:",
		followUpBlock, len(beliefs), stats.Total)

	_, raw, err := rt.router.ChatWithFallback(ctx, rt.primary(), p)
	if err != nil {
		slog.Debug("run_proactive_check: llm unavailable", "err", err)
		return nil
	}

	var decision proactiveDecision
	if !llm.ExtractJSONOutput(raw, &decision) {
		return nil
	}
	if decision.Action == nil || *decision.Action != "message" || decision.Message == nil || *decision.Message == "" {
		return nil
	}

	out := &ProactiveOutput{Action: *decision.Action, Message: *decision.Message}
	if decision.Urgency != nil {
		out.Urgency = *decision.Urgency
	}
	return out
}
