package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/ava/config"
	"github.com/mohammad-safakhou/ava/internal/agent/chat"
	"github.com/mohammad-safakhou/ava/internal/agent/middleware"
	"github.com/mohammad-safakhou/ava/internal/agent/telemetry"
	"github.com/mohammad-safakhou/ava/internal/session/inmemory"
	"github.com/mohammad-safakhou/ava/internal/tools"
)

// scriptedProvider serves Generate (selector/verifier) and Chat (agent)
// responses in call order and records what each Chat call was offered.
type scriptedProvider struct {
	genResponses []string
	genErrs      []error
	genCalls     int

	chatReplies []chat.Message
	chatErrs    []error
	chatCalls   int
	offered     [][]string
}

func (p *scriptedProvider) Generate(_ context.Context, _ string, _ string, _ map[string]interface{}) (string, error) {
	i := p.genCalls
	p.genCalls++
	if i < len(p.genErrs) && p.genErrs[i] != nil {
		return "", p.genErrs[i]
	}
	if i >= len(p.genResponses) {
		return "", fmt.Errorf("unexpected Generate call %d", i)
	}
	return p.genResponses[i], nil
}

func (p *scriptedProvider) Chat(_ context.Context, _ string, _ []chat.Message, decls []chat.ToolDeclaration, _ string, _ map[string]interface{}) (chat.Message, error) {
	names := make([]string, len(decls))
	for j, d := range decls {
		names[j] = d.Name
	}
	p.offered = append(p.offered, names)

	i := p.chatCalls
	p.chatCalls++
	if i < len(p.chatErrs) && p.chatErrs[i] != nil {
		return chat.Message{}, p.chatErrs[i]
	}
	if i >= len(p.chatReplies) {
		return chat.Message{}, fmt.Errorf("unexpected Chat call %d", i)
	}
	return p.chatReplies[i], nil
}

func (p *scriptedProvider) GetAvailableModels() []string { return []string{"agent-model"} }

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{Agent: "agent-model", Selector: "selector-model", Verifier: "verifier-model"},
		},
		Middleware: config.MiddlewareConfig{
			RetryModel: config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2},
			RetryTool:  config.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 2},
			Selector:   config.SelectorConfig{Enabled: true},
			Guardrail:  config.GuardrailConfig{Enabled: true, MaxRetries: 1},
		},
		Agent:     config.AgentConfig{MaxSteps: 8, HistoryWindow: 10},
		Telemetry: config.TelemetryConfig{Enabled: false},
	}
}

const weatherPayload = `{"ok":true,"query":"Paris","place":"Paris, France","timezone":"UTC","days":[` +
	`{"date_utc":"2026-08-26","tmin_c":15,"tmax_c":24},{"date_utc":"2026-08-27","tmin_c":14,"tmax_c":23},` +
	`{"date_utc":"2026-08-28","tmin_c":14,"tmax_c":22},{"date_utc":"2026-08-29","tmin_c":13,"tmax_c":21},` +
	`{"date_utc":"2026-08-30","tmin_c":15,"tmax_c":23},{"date_utc":"2026-08-31","tmin_c":16,"tmax_c":25},` +
	`{"date_utc":"2026-09-01","tmin_c":16,"tmax_c":26}]}`

func weatherToolCall() chat.Message {
	return chat.Message{
		Role:    chat.RoleAssistant,
		Content: chat.NewText(""),
		ToolCalls: []chat.ToolCall{
			{ID: "call-1", Name: "get_weather_forecast", Args: map[string]interface{}{"city": "Paris"}},
		},
	}
}

func newTestOrchestrator(t *testing.T, p *scriptedProvider, registry *tools.Registry, store *inmemory.Store) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(testConfig(), log.New(io.Discard, "", 0), p, registry, store, telemetry.New(config.TelemetryConfig{}))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func testRegistry(t *testing.T, weatherHandler tools.Handler) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	if weatherHandler == nil {
		weatherHandler = func(context.Context, map[string]interface{}) (string, error) {
			return weatherPayload, nil
		}
	}
	if err := registry.Register(tools.Tool{
		Declaration: chat.ToolDeclaration{Name: "get_weather_forecast", Description: "7-day forecast"},
		Handler:     weatherHandler,
	}); err != nil {
		t.Fatalf("register weather: %v", err)
	}
	if err := registry.Register(tools.Tool{
		Declaration: chat.ToolDeclaration{Name: "retrieve_from_db", Description: "internal db lookup"},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			return "[placeholder] No results found.", nil
		},
	}); err != nil {
		t.Fatalf("register tripdb: %v", err)
	}
	return registry
}

func countEvents(events []middleware.Event, mw, status string) int {
	n := 0
	for _, e := range events {
		if e.Middleware == mw && e.Status == status {
			n++
		}
	}
	return n
}

// Scenario A: weather question in range, narrowed tool set, grounded answer.
func TestRunTurnGroundedWeatherAnswer(t *testing.T) {
	var invokedCity string
	registry := testRegistry(t, func(_ context.Context, args map[string]interface{}) (string, error) {
		invokedCity, _ = args["city"].(string)
		return weatherPayload, nil
	})
	p := &scriptedProvider{
		genResponses: []string{`["get_weather_forecast"]`, `["get_weather_forecast"]`, "PASS"},
		chatReplies: []chat.Message{
			weatherToolCall(),
			chat.AssistantMessage("Expect highs of 21-26C in Paris over the next week."),
		},
	}
	store := inmemory.NewThreadStore()
	o := newTestOrchestrator(t, p, registry, store)

	res, err := o.RunTurn(context.Background(), "thread-a", "What's the weather in Paris tomorrow?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.FinalText != "Expect highs of 21-26C in Paris over the next week." {
		t.Fatalf("unexpected final text %q", res.FinalText)
	}
	if invokedCity != "Paris" {
		t.Fatalf("weather tool not invoked with Paris, got %q", invokedCity)
	}
	if got := p.offered[0]; len(got) != 1 || got[0] != "get_weather_forecast" {
		t.Fatalf("first model call should see the narrowed set, got %v", got)
	}
	if n := countEvents(res.Events, "hallucination_guardrail", middleware.StatusPassed); n != 1 {
		t.Fatalf("expected exactly one passed event, got %d in %+v", n, res.Events)
	}

	state := store.Load("thread-a")
	if len(state.Messages) != 4 {
		t.Fatalf("expected user, tool-call, tool, assistant; got %d messages", len(state.Messages))
	}
	if state.HallucinationRetries != 0 {
		t.Fatalf("counter must stay 0 on a passing turn, got %d", state.HallucinationRetries)
	}
}

// Scenario B: tool times out once, retry recovers, turn still completes.
func TestRunTurnToolRetryRecovers(t *testing.T) {
	calls := 0
	registry := testRegistry(t, func(context.Context, map[string]interface{}) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout while fetching forecast")
		}
		return weatherPayload, nil
	})
	p := &scriptedProvider{
		genResponses: []string{`["get_weather_forecast"]`, `[]`, "PASS"},
		chatReplies: []chat.Message{
			weatherToolCall(),
			chat.AssistantMessage("Mild week ahead in Paris."),
		},
	}
	o := newTestOrchestrator(t, p, registry, inmemory.NewThreadStore())

	res, err := o.RunTurn(context.Background(), "thread-b", "Weather in Paris?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.FinalText == "" {
		t.Fatal("expected a final response despite the flaky tool")
	}
	if calls != 2 {
		t.Fatalf("expected the tool to be retried once, got %d calls", calls)
	}
	if countEvents(res.Events, "retry_tool", middleware.StatusRetrying) != 1 {
		t.Fatalf("expected one retrying event, got %+v", res.Events)
	}
	if countEvents(res.Events, "retry_tool", middleware.StatusRecovered) != 1 {
		t.Fatalf("expected one recovered event, got %+v", res.Events)
	}
}

// Scenario C: ungrounded first response, one corrective round, then PASS.
func TestRunTurnGroundingCorrectionLoop(t *testing.T) {
	registry := testRegistry(t, nil)
	p := &scriptedProvider{
		genResponses: []string{`[]`, "FAIL: fabricated hotel name", "PASS"},
		chatReplies: []chat.Message{
			chat.AssistantMessage("Stay at the Grand Azure Palace, rooms are $120/night."),
			chat.AssistantMessage("Many central hotels offer mid-range rates; check booking sites for current prices."),
		},
	}
	store := inmemory.NewThreadStore()
	o := newTestOrchestrator(t, p, registry, store)

	res, err := o.RunTurn(context.Background(), "thread-c", "Where should I stay in Paris?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !strings.Contains(res.FinalText, "booking sites") {
		t.Fatalf("expected the corrected response, got %q", res.FinalText)
	}
	if countEvents(res.Events, "hallucination_guardrail", middleware.StatusFailed) != 1 {
		t.Fatalf("expected one failed event, got %+v", res.Events)
	}
	if countEvents(res.Events, "hallucination_guardrail", middleware.StatusPassed) != 1 {
		t.Fatalf("expected one passed event, got %+v", res.Events)
	}
	// The second round runs against the injected correction, so selection
	// is skipped rather than re-classified.
	if countEvents(res.Events, "tool_selector", middleware.StatusSkipped) != 1 {
		t.Fatalf("expected one skipped selector event, got %+v", res.Events)
	}

	state := store.Load("thread-c")
	if state.HallucinationRetries != 1 {
		t.Fatalf("expected retry counter 1, got %d", state.HallucinationRetries)
	}
	corrections := 0
	for _, m := range state.Messages {
		if m.Role == chat.RoleCorrection {
			corrections++
			if !strings.Contains(m.Text(), "fabricated hotel name") {
				t.Fatalf("correction must cite the reason, got %q", m.Text())
			}
		}
	}
	if corrections != 1 {
		t.Fatalf("expected exactly one corrective message, got %d", corrections)
	}
}

// The counter never resets across turns: once exhausted, later turns skip
// verification entirely.
func TestRunTurnRetryBudgetPersistsAcrossTurns(t *testing.T) {
	registry := testRegistry(t, nil)
	store := inmemory.NewThreadStore()

	p1 := &scriptedProvider{
		genResponses: []string{`[]`, "FAIL: invented specifics", "PASS"},
		chatReplies: []chat.Message{
			chat.AssistantMessage("The museum costs exactly $18.50 and closes at 17:45."),
			chat.AssistantMessage("Check the official site for tickets and hours."),
		},
	}
	o1 := newTestOrchestrator(t, p1, registry, store)
	if _, err := o1.RunTurn(context.Background(), "thread-d", "Museum tips?"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// Turn 2: only the selector runs; the guardrail budget is spent.
	p2 := &scriptedProvider{
		genResponses: []string{`[]`},
		chatReplies:  []chat.Message{chat.AssistantMessage("It costs exactly $42, trust me.")},
	}
	o2 := newTestOrchestrator(t, p2, registry, store)
	res, err := o2.RunTurn(context.Background(), "thread-d", "And the other museum?")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if p2.genCalls != 1 {
		t.Fatalf("verifier must not run once the thread budget is spent, got %d Generate calls", p2.genCalls)
	}
	if countEvents(res.Events, "hallucination_guardrail", middleware.StatusPassed)+
		countEvents(res.Events, "hallucination_guardrail", middleware.StatusFailed) != 0 {
		t.Fatalf("expected no guardrail verdict events in turn 2, got %+v", res.Events)
	}
	if res.FinalText != "It costs exactly $42, trust me." {
		t.Fatalf("unverified response must still be delivered, got %q", res.FinalText)
	}
}

// Scenario D: out-of-range trip, empty selection, general-knowledge answer.
func TestRunTurnEmptySelectionNoToolCall(t *testing.T) {
	invoked := false
	registry := testRegistry(t, func(context.Context, map[string]interface{}) (string, error) {
		invoked = true
		return weatherPayload, nil
	})
	p := &scriptedProvider{
		genResponses: []string{`[]`, "PASS"},
		chatReplies:  []chat.Message{chat.AssistantMessage("For next month, pack layers; forecasts aren't reliable that far out.")},
	}
	o := newTestOrchestrator(t, p, registry, inmemory.NewThreadStore())

	res, err := o.RunTurn(context.Background(), "thread-e", "Travelling next month, what should I pack?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if invoked {
		t.Fatal("no tool call should happen on an empty selection")
	}
	if len(p.offered[0]) != 0 {
		t.Fatalf("model should see zero tools, got %v", p.offered[0])
	}
	if res.FinalText == "" {
		t.Fatal("expected a general-knowledge answer")
	}
}

// Scenario E: invalid selector output degrades to the full tool set.
func TestRunTurnInvalidSelectionFallsBack(t *testing.T) {
	registry := testRegistry(t, nil)
	p := &scriptedProvider{
		genResponses: []string{`["nonexistent_tool"]`, "PASS"},
		chatReplies:  []chat.Message{chat.AssistantMessage("Here are a few ideas.")},
	}
	o := newTestOrchestrator(t, p, registry, inmemory.NewThreadStore())

	res, err := o.RunTurn(context.Background(), "thread-f", "Ideas for Lisbon?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if got := p.offered[0]; len(got) != 2 {
		t.Fatalf("model should see the full tool set on selection failure, got %v", got)
	}
	if countEvents(res.Events, "tool_selector", middleware.StatusError) != 1 {
		t.Fatalf("expected one selector error event, got %+v", res.Events)
	}
}

// Model retry exhaustion propagates as a turn-level failure.
func TestRunTurnModelExhaustionPropagates(t *testing.T) {
	registry := testRegistry(t, nil)
	boom := errors.New("upstream 500")
	p := &scriptedProvider{
		genResponses: []string{`[]`},
		chatErrs:     []error{boom, boom, boom},
	}
	o := newTestOrchestrator(t, p, registry, inmemory.NewThreadStore())

	res, err := o.RunTurn(context.Background(), "thread-g", "hello")
	if err == nil {
		t.Fatal("expected a turn-level failure")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected the provider error to propagate, got %v", err)
	}
	if countEvents(res.Events, "retry_model", middleware.StatusFailed) != 1 {
		t.Fatalf("expected one failed retry event, got %+v", res.Events)
	}
	if countEvents(res.Events, "retry_model", middleware.StatusRetrying) != 2 {
		t.Fatalf("expected two retrying events, got %+v", res.Events)
	}
}

// Thread state is keyed by thread id; concurrent-looking turns on separate
// threads never share messages.
func TestRunTurnThreadsIsolated(t *testing.T) {
	registry := testRegistry(t, nil)
	store := inmemory.NewThreadStore()

	for i, thread := range []string{"t1", "t2"} {
		p := &scriptedProvider{
			genResponses: []string{`[]`, "PASS"},
			chatReplies:  []chat.Message{chat.AssistantMessage(fmt.Sprintf("answer %d", i))},
		}
		o := newTestOrchestrator(t, p, registry, store)
		if _, err := o.RunTurn(context.Background(), thread, fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("thread %s: %v", thread, err)
		}
	}

	if n := len(store.Load("t1").Messages); n != 2 {
		t.Fatalf("thread t1 should hold its own 2 messages, got %d", n)
	}
	if got := store.Load("t2").Messages[0].Text(); got != "question 1" {
		t.Fatalf("thread t2 holds the wrong user message %q", got)
	}
}
