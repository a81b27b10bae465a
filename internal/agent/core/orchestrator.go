package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/ava/config"
	"github.com/mohammad-safakhou/ava/internal/agent/chat"
	"github.com/mohammad-safakhou/ava/internal/agent/middleware"
	"github.com/mohammad-safakhou/ava/internal/agent/telemetry"
	"github.com/mohammad-safakhou/ava/internal/session"
	"github.com/mohammad-safakhou/ava/internal/tools"
)

// Orchestrator drives one agent turn: select tools, call the model through
// the model retry policy, execute requested tool calls through the tool
// retry policy, then run the grounding guardrail, looping back to the model
// as needed. It owns the thread state for the duration of the turn.
type Orchestrator struct {
	cfg      *config.Config
	logger   *log.Logger
	provider LLMProvider
	registry *tools.Registry
	store    session.Store
	tele     *telemetry.Telemetry

	retryModel middleware.RetryPolicy
	retryTool  middleware.RetryPolicy
	selector   *middleware.ToolSelector
	guardrail  *middleware.Guardrail
}

// NewOrchestrator wires the middleware pipeline from config. The selector
// and verifier reuse the agent provider, each with its own model slot; an
// empty verifier slot falls back to the agent model.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, provider LLMProvider, registry *tools.Registry, store session.Store, tele *telemetry.Telemetry) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if cfg.LLM.Routing.Agent == "" {
		return nil, fmt.Errorf("llm.routing.agent not configured")
	}

	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		registry: registry,
		store:    store,
		tele:     tele,
		retryModel: middleware.RetryPolicy{
			Middleware:    "retry_model",
			MaxAttempts:   cfg.Middleware.RetryModel.MaxAttempts,
			InitialDelay:  cfg.Middleware.RetryModel.InitialDelay,
			BackoffFactor: cfg.Middleware.RetryModel.BackoffFactor,
		},
		retryTool: middleware.RetryPolicy{
			Middleware:    "retry_tool",
			MaxAttempts:   cfg.Middleware.RetryTool.MaxAttempts,
			InitialDelay:  cfg.Middleware.RetryTool.InitialDelay,
			BackoffFactor: cfg.Middleware.RetryTool.BackoffFactor,
		},
	}

	if cfg.Middleware.Selector.Enabled {
		selectorModel := cfg.LLM.Routing.Selector
		if selectorModel == "" {
			selectorModel = cfg.LLM.Routing.Agent
		}
		o.selector = &middleware.ToolSelector{
			Classifier: provider,
			Model:      selectorModel,
			Prompt:     ToolSelectorPrompt,
			Logger:     log.New(logger.Writer(), "[SELECTOR] ", log.LstdFlags),
		}
	}
	if cfg.Middleware.Guardrail.Enabled {
		verifierModel := cfg.LLM.Routing.Verifier
		if verifierModel == "" {
			verifierModel = cfg.LLM.Routing.Agent
		}
		o.guardrail = &middleware.Guardrail{
			Verifier:      provider,
			Model:         verifierModel,
			Prompt:        GroundingCheckPrompt,
			MaxRetries:    cfg.Middleware.Guardrail.MaxRetries,
			HistoryWindow: cfg.Agent.HistoryWindow,
			Logger:        log.New(logger.Writer(), "[GUARDRAIL] ", log.LstdFlags),
		}
	}
	return o, nil
}

// RunTurn processes one user input for a thread and returns the accepted
// assistant response, the full message trace, and the collected middleware
// events. Retry exhaustion on the model or a tool propagates as an error;
// the events collected up to that point are still returned.
func (o *Orchestrator) RunTurn(ctx context.Context, threadID, userInput string) (TurnResult, error) {
	start := time.Now()
	sink := middleware.NewSink()
	sink.Reset()

	release := o.store.Acquire(threadID)
	defer release()

	state := o.store.Load(threadID)
	startRetries := state.HallucinationRetries
	state.Messages = append(state.Messages, chat.UserMessage(userInput))
	o.logger.Printf("turn started thread=%s messages=%d", threadID, len(state.Messages))

	maxSteps := o.cfg.Agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}
	decls := o.registry.Declarations()

	accepted := false
	for step := 0; step < maxSteps && !accepted; step++ {
		offered := decls
		if o.selector != nil {
			offered = o.selector.Select(ctx, sink, state.Messages, decls)
		}

		var reply chat.Message
		err := o.retryModel.Do(ctx, sink, "Model call", nil, func(ctx context.Context) error {
			m, err := o.provider.Chat(ctx, SystemPrompt, state.Messages, offered, o.cfg.LLM.Routing.Agent, nil)
			if err != nil {
				return err
			}
			reply = m
			return nil
		})
		if err != nil {
			return o.finish(threadID, state, sink, start, false, fmt.Errorf("model call: %w", err))
		}
		state.Messages = append(state.Messages, reply)

		if len(reply.ToolCalls) > 0 {
			for _, call := range reply.ToolCalls {
				o.tele.RecordToolCall(call.Name)
				var payload string
				err := o.retryTool.Do(ctx, sink,
					fmt.Sprintf("Tool '%s'", call.Name),
					map[string]interface{}{"tool": call.Name},
					func(ctx context.Context) error {
						out, err := o.registry.Invoke(ctx, call.Name, call.Args)
						if err != nil {
							return err
						}
						payload = out
						return nil
					})
				if err != nil {
					return o.finish(threadID, state, sink, start, false, fmt.Errorf("tool %s: %w", call.Name, err))
				}
				state.Messages = append(state.Messages, chat.ToolMessage(call.Name, call.ID, payload))
			}
			continue
		}

		if o.guardrail != nil {
			if correction := o.guardrail.Check(ctx, sink, state.Messages, startRetries, state.HallucinationRetries); correction != nil {
				state.Messages = append(state.Messages, *correction)
				state.HallucinationRetries++
				continue
			}
		}
		accepted = true
	}

	if !accepted {
		return o.finish(threadID, state, sink, start, false,
			fmt.Errorf("turn for thread %s did not finish within %d steps", threadID, maxSteps))
	}

	res, err := o.finish(threadID, state, sink, start, true, nil)
	res.FinalText = state.Messages[len(state.Messages)-1].Text()
	return res, err
}

// finish saves thread state, drains the sink, and records telemetry. The
// state is saved even on failure so the appended messages survive the turn.
func (o *Orchestrator) finish(threadID string, state session.ThreadState, sink *middleware.Sink, start time.Time, success bool, cause error) (TurnResult, error) {
	o.store.Save(threadID, state)
	events := sink.Drain()
	o.tele.RecordEvents(events)
	o.tele.RecordTurn(time.Since(start), success)
	if cause != nil {
		o.logger.Printf("turn failed thread=%s: %v", threadID, cause)
	} else {
		o.logger.Printf("turn completed thread=%s messages=%d events=%d in %s",
			threadID, len(state.Messages), len(events), time.Since(start).Round(time.Millisecond))
	}
	return TurnResult{
		Trace:  append([]chat.Message(nil), state.Messages...),
		Events: events,
	}, cause
}
