package middleware

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/ava/internal/agent/chat"
)

// Guardrail verifies that final assistant responses are grounded in the
// tool observations and user requests seen so far. On a failed verdict it
// produces a corrective message that forces one more generation round,
// bounded by MaxRetries per thread. Verification failures never block a
// response from reaching the user.
type Guardrail struct {
	Verifier Classifier
	Model    string
	// Prompt is the grounding rubric. Placeholders {conversation_summary},
	// {tool_observations} and {response_to_check} are filled per check.
	Prompt string
	// MaxRetries caps corrective rounds per thread. The counter is carried
	// on thread state and never resets between turns.
	MaxRetries int
	// HistoryWindow bounds the conversation summary fed to the verifier.
	HistoryWindow int
	Logger        *log.Logger
}

const guardrailName = "hallucination_guardrail"

const correctionFormat = "[SYSTEM: Your previous response did not pass a factual grounding check. " +
	"Issue: %s. " +
	"Please regenerate your response. Follow these rules strictly: " +
	"(1) Only cite weather data that was returned by the weather tool. " +
	"(2) Do not invent specific prices, hours, or real-time details. " +
	"(3) If a tool returned an error, acknowledge you could not retrieve that data. " +
	"(4) Hedge or qualify any specific claims you are not certain about.]"

// Check inspects the most recent message and returns a corrective message
// when the response fails the grounding check. A nil result means the
// response is accepted.
//
// startRetries is the thread's hallucination-retry count when the turn
// began; a thread that has already spent its budget skips verification
// entirely. retries is the live count, bounding how many corrections this
// check may still produce: a regenerated response is re-verified within the
// same turn, but a second FAIL is accepted rather than corrected again. The
// caller appends the returned correction and increments the counter.
func (g *Guardrail) Check(ctx context.Context, sink *Sink, msgs []chat.Message, startRetries, retries int) *chat.Message {
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]

	// Only final assistant text is verified. Tool-calling turns and empty
	// responses pass through without any event.
	if last.Role != chat.RoleAssistant {
		g.logf("guardrail skipped: last message role is %s", last.Role)
		return nil
	}
	if len(last.ToolCalls) > 0 {
		g.logf("guardrail skipped: model is calling tools")
		return nil
	}
	text := last.Text()
	if strings.TrimSpace(text) == "" {
		g.logf("guardrail skipped: empty response")
		return nil
	}
	if startRetries >= g.MaxRetries {
		g.logf("guardrail retry budget exhausted (%d/%d), accepting response as-is", startRetries, g.MaxRetries)
		return nil
	}

	g.logf("guardrail running grounding check (attempt %d/%d, response length=%d chars)",
		retries+1, g.MaxRetries+1, len(text))

	observations := toolObservations(msgs)
	if observations == "" {
		observations = "(No tools were called)"
	}
	prompt := strings.NewReplacer(
		"{conversation_summary}", summarizeConversation(msgs, g.HistoryWindow),
		"{tool_observations}", observations,
		"{response_to_check}", text,
	).Replace(g.Prompt)

	raw, err := g.Verifier.Generate(ctx, prompt, g.Model, map[string]interface{}{"temperature": 0.0})
	if err != nil {
		g.logf("grounding check invocation failed (%v), accepting response as-is", err)
		sink.Emit(guardrailName, StatusError,
			"Grounding check model invocation failed - accepting response as-is", nil)
		return nil
	}
	verdict := strings.TrimSpace(raw)
	g.logf("grounding check raw verdict: %q", verdict)

	switch {
	case strings.HasPrefix(verdict, "PASS"):
		sink.Emit(guardrailName, StatusPassed,
			"Grounding check PASSED - response is well-grounded",
			map[string]interface{}{"verdict": verdict})
		return nil
	case strings.HasPrefix(verdict, "FAIL"):
		reason := "ungrounded content detected"
		if idx := strings.Index(verdict, ":"); idx >= 0 {
			reason = strings.TrimSpace(verdict[idx+1:])
		}
		if retries >= g.MaxRetries {
			g.logf("grounding check FAILED (reason: %s) but corrective budget is spent, accepting response", reason)
			sink.Emit(guardrailName, StatusFailed,
				"Grounding check FAILED - retry budget exhausted, accepting response",
				map[string]interface{}{"verdict": verdict, "reason": reason})
			return nil
		}
		g.logf("grounding check FAILED (reason: %s), injecting corrective instructions", reason)
		sink.Emit(guardrailName, StatusFailed,
			"Grounding check FAILED - re-routing to model for correction",
			map[string]interface{}{"verdict": verdict, "reason": reason, "retry": retries + 1})
		correction := chat.CorrectionMessage(fmt.Sprintf(correctionFormat, reason))
		return &correction
	default:
		g.logf("unexpected grounding check verdict format: %q, accepting response as-is", verdict)
		sink.Emit(guardrailName, StatusError,
			"Unexpected grounding check verdict format - accepting response as-is",
			map[string]interface{}{"verdict": verdict})
		return nil
	}
}

// toolObservations concatenates every tool-result message seen so far,
// tagged with its originating tool name, in chronological order.
func toolObservations(msgs []chat.Message) string {
	var lines []string
	for _, m := range msgs {
		if m.Role != chat.RoleTool {
			continue
		}
		name := m.ToolName
		if name == "" {
			name = "unknown_tool"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", name, m.Text()))
	}
	return strings.Join(lines, "\n")
}

// summarizeConversation builds a bounded summary of the last window turns.
// Injected corrections are excluded; assistant tool-call turns are reduced
// to the tool names; assistant text is truncated to 100 characters.
func summarizeConversation(msgs []chat.Message, window int) string {
	if window <= 0 {
		window = 10
	}
	var parts []string
	for _, m := range msgs {
		switch {
		case m.UserAuthored():
			text := m.Text()
			if strings.HasPrefix(text, chat.CorrectionMarker) {
				continue
			}
			parts = append(parts, "User: "+text)
		case m.Role == chat.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				parts = append(parts, "Assistant: [called tools: "+strings.Join(names, ", ")+"]")
				continue
			}
			text := m.Text()
			if len(text) > 100 {
				text = text[:100] + "..."
			}
			parts = append(parts, "Assistant: "+text)
		}
	}
	if len(parts) > window {
		parts = parts[len(parts)-window:]
	}
	return strings.Join(parts, "\n")
}

func (g *Guardrail) logf(format string, args ...interface{}) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}
