package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/ava/internal/agent/chat"
)

// Classifier is the constrained LLM call used for tool routing and
// grounding verification. It is satisfied by core.LLMProvider.
type Classifier interface {
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
}

// ToolSelector decides, before each model call, whether the full declared
// tool set or a narrowed subset is offered to the model. Selection failures
// never block the turn: any classifier error or invalid result degrades to
// the full tool set.
type ToolSelector struct {
	Classifier Classifier
	Model      string
	// Prompt is the selection prompt template. Occurrences of {today} are
	// replaced with the current date before each call.
	Prompt string
	Logger *log.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

const selectorName = "tool_selector"

// Select returns the tool declarations to offer the model for this call.
// An empty (non-nil) result is a valid outcome meaning "no tool this turn".
func (s *ToolSelector) Select(ctx context.Context, sink *Sink, msgs []chat.Message, decls []chat.ToolDeclaration) []chat.ToolDeclaration {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	today := now().Format("2006-01-02")

	available := make([]string, len(decls))
	for i, d := range decls {
		available[i] = d.Name
	}
	s.logf("tool selector invoked, %d tool(s) available: %v", len(decls), available)

	// Corrective messages injected by the grounding guardrail sit in the
	// user slot; selecting against them would route on the correction text
	// instead of the real user query.
	var lastUser string
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].UserAuthored() {
			continue
		}
		lastUser = msgs[i].Text()
		if strings.HasPrefix(lastUser, chat.CorrectionMarker) {
			s.logf("tool selector skipped: last user message is a system-injected correction")
			sink.Emit(selectorName, StatusSkipped, "Skipped - processing grounding guardrail retry", nil)
			return decls
		}
		break
	}

	prompt := strings.ReplaceAll(s.Prompt, "{today}", today)
	raw, err := s.Classifier.Generate(ctx, buildSelectionPrompt(prompt, decls, lastUser), s.Model, map[string]interface{}{"temperature": 0.0})
	if err != nil {
		s.logf("tool selector failed (%v), falling back to all tools: %v", err, available)
		sink.Emit(selectorName, StatusError, "Tool selection failed - keeping all tools available",
			map[string]interface{}{"error": err.Error()})
		return decls
	}

	names, err := parseToolNames(raw)
	if err != nil {
		s.logf("tool selector returned unparseable output (%v), falling back to all tools", err)
		sink.Emit(selectorName, StatusError, "Tool selection failed - keeping all tools available",
			map[string]interface{}{"error": err.Error()})
		return decls
	}

	selected := make([]chat.ToolDeclaration, 0, len(names))
	for _, name := range names {
		found := false
		for _, d := range decls {
			if d.Name == name {
				selected = append(selected, d)
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("selection returned undeclared tool %q", name)
			s.logf("tool selector failed (%v), falling back to all tools: %v", err, available)
			sink.Emit(selectorName, StatusError, "Tool selection failed - keeping all tools available",
				map[string]interface{}{"error": err.Error()})
			return decls
		}
	}

	s.logf("tool selector completed, selected tools: %v", names)
	sink.Emit(selectorName, StatusSuccess, "Tool selection completed",
		map[string]interface{}{"selected_tools": names})
	return selected
}

func buildSelectionPrompt(prompt string, decls []chat.ToolDeclaration, lastUser string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nDeclared tools:\n")
	for _, d := range decls {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	b.WriteString("\nUser request:\n")
	b.WriteString(lastUser)
	b.WriteString("\n\nRespond with a JSON array of tool names and nothing else.")
	return b.String()
}

// parseToolNames reads a JSON array of strings, tolerating markdown code
// fences around the payload.
func parseToolNames(raw string) ([]string, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	var names []string
	if err := json.Unmarshal([]byte(cleaned), &names); err != nil {
		return nil, fmt.Errorf("parse selection %q: %w", raw, err)
	}
	return names, nil
}

func (s *ToolSelector) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
