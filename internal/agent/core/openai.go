package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mohammad-safakhou/ava/config"
	"github.com/mohammad-safakhou/ava/internal/agent/chat"
)

// NewLLMProvider creates a provider from the configured provider set.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	for name, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported llm provider type %q for %q", provider.Type, name)
		}
	}
	return nil, fmt.Errorf("no llm providers configured")
}

// OpenAIProvider implements LLMProvider against an OpenAI-compatible
// chat-completions endpoint.
type OpenAIProvider struct {
	config    config.LLMProvider
	rawModels map[string]config.LLMModel
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	return &OpenAIProvider{
		config:    cfg,
		rawModels: cfg.Models,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireTool struct {
	Type     string               `json:"type"`
	Function chat.ToolDeclaration `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   chat.Content   `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate runs a single-prompt completion.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	reply, err := p.complete(ctx, model, []wireMessage{{Role: "user", Content: prompt}}, nil, options)
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}

// Chat runs one conversational model call with tool declarations.
func (p *OpenAIProvider) Chat(ctx context.Context, system string, msgs []chat.Message, tools []chat.ToolDeclaration, model string, options map[string]interface{}) (chat.Message, error) {
	wire := make([]wireMessage, 0, len(msgs)+1)
	if system != "" {
		wire = append(wire, wireMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		wm, err := toWireMessage(m)
		if err != nil {
			return chat.Message{}, err
		}
		wire = append(wire, wm)
	}

	wireTools := make([]wireTool, len(tools))
	for i, t := range tools {
		wireTools[i] = wireTool{Type: "function", Function: t}
	}
	return p.complete(ctx, model, wire, wireTools, options)
}

func toWireMessage(m chat.Message) (wireMessage, error) {
	switch m.Role {
	case chat.RoleUser, chat.RoleCorrection:
		// Corrections travel in the user slot; the marker prefix in the
		// text is what distinguishes them downstream.
		return wireMessage{Role: "user", Content: m.Text()}, nil
	case chat.RoleAssistant:
		wm := wireMessage{Role: "assistant", Content: m.Text()}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				return wireMessage{}, fmt.Errorf("marshal tool call args: %w", err)
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		return wm, nil
	case chat.RoleTool:
		return wireMessage{Role: "tool", Content: m.Text(), ToolCallID: m.ToolCallID, Name: m.ToolName}, nil
	default:
		return wireMessage{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, model string, msgs []wireMessage, tools []wireTool, options map[string]interface{}) (chat.Message, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return chat.Message{}, fmt.Errorf("OpenAI API key not configured")
	}

	m, ok := p.rawModels[model]
	if !ok {
		return chat.Message{}, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	temperature := m.Temperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}
	maxTokens := m.MaxTokens
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = mt
	}

	body, err := json.Marshal(chatRequest{
		Model:       apiModel,
		Messages:    msgs,
		Tools:       tools,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return chat.Message{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return chat.Message{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return chat.Message{}, fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, string(snippet))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chat.Message{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return chat.Message{}, fmt.Errorf("no choices")
	}

	reply := chat.Message{
		Role:    chat.RoleAssistant,
		Content: out.Choices[0].Message.Content,
	}
	for _, tc := range out.Choices[0].Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return chat.Message{}, fmt.Errorf("decode tool call args for %s: %w", tc.Function.Name, err)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, chat.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return reply, nil
}

// GetAvailableModels returns available models
func (p *OpenAIProvider) GetAvailableModels() []string {
	var models []string
	for name := range p.rawModels {
		models = append(models, name)
	}
	return models
}
