package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/ava/internal/agent/chat"
	"github.com/mohammad-safakhou/ava/internal/agent/core"
	"github.com/mohammad-safakhou/ava/internal/agent/middleware"
)

// genericErrorMessage is the only failure detail users ever see; retry and
// verification internals stay in the event trace and logs.
const genericErrorMessage = "Something went wrong. Please try again later."

// TurnRunner is the orchestrator surface the handler depends on.
type TurnRunner interface {
	RunTurn(ctx context.Context, threadID, userInput string) (core.TurnResult, error)
}

// CompletionsHandler serves POST /completions.
type CompletionsHandler struct {
	Runner TurnRunner
	Model  string
	Logger *log.Logger
}

type completionRequest struct {
	ThreadID string `json:"thread_id"`
	Input    string `json:"input"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// traceEntry is one debug-trace line mirroring a conversation message.
type traceEntry struct {
	Type      string           `json:"type"`
	Content   string           `json:"content"`
	ToolCalls []traceToolCall  `json:"tool_calls,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type traceToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type completionResponse struct {
	ID               string             `json:"id"`
	Object           string             `json:"object"`
	Created          int64              `json:"created"`
	Model            string             `json:"model"`
	ThreadID         string             `json:"thread_id"`
	Choices          []completionChoice `json:"choices"`
	Debug            []traceEntry       `json:"debug"`
	MiddlewareEvents []middleware.Event `json:"middleware_events"`
}

func (h *CompletionsHandler) Create(c echo.Context) error {
	var req completionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id is required")
	}
	if strings.TrimSpace(req.Input) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input is required")
	}

	h.Logger.Printf("invoking agent for thread_id=%s", req.ThreadID)
	res, err := h.Runner.RunTurn(c.Request().Context(), req.ThreadID, req.Input)
	if err != nil {
		h.Logger.Printf("agent invocation failed for thread_id=%s: %v", req.ThreadID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": genericErrorMessage})
	}

	return c.JSON(http.StatusOK, completionResponse{
		ID:       fmt.Sprintf("chatcmpl-%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    h.Model,
		ThreadID: req.ThreadID,
		Choices: []completionChoice{{
			Index:        0,
			Message:      completionMessage{Role: "assistant", Content: res.FinalText},
			FinishReason: "stop",
		}},
		Debug:            traceEntries(res.Trace),
		MiddlewareEvents: res.Events,
	})
}

// traceEntries builds the chronological debug trace from the message log.
func traceEntries(msgs []chat.Message) []traceEntry {
	entries := make([]traceEntry, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text()
		entry := traceEntry{Type: string(m.Role), Content: text}
		if len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				entry.ToolCalls = append(entry.ToolCalls, traceToolCall{Name: tc.Name, Args: tc.Args})
			}
			// Text alongside tool calls is the model's stated reasoning
			// for calling the tool.
			if strings.TrimSpace(text) != "" {
				entry.Reasoning = text
			}
		}
		if m.Role == chat.RoleTool {
			entry.ToolName = m.ToolName
		}
		entries = append(entries, entry)
	}
	return entries
}
