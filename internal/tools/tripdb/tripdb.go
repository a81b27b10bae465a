package tripdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/ava/internal/agent/chat"
	"github.com/mohammad-safakhou/ava/internal/tools"
)

// ToolName is the name the internal lookup tool is declared under.
const ToolName = "retrieve_from_db"

// TODO: replace the placeholder handler once the internal travel database
// is connected.

// Tool returns the internal database lookup tool. Until the database is
// wired up it answers every query with a stable placeholder payload.
func Tool() tools.Tool {
	return tools.Tool{
		Declaration: chat.ToolDeclaration{
			Name: ToolName,
			Description: "Search the internal travel database for relevant information. " +
				"Use this when the user asks about saved trips, bookings, or stored preferences.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Free-text search query.",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("missing required argument 'query'")
			}
			return Lookup(ctx, query)
		},
	}
}

// Lookup is the placeholder retrieval call.
func Lookup(_ context.Context, query string) (string, error) {
	return fmt.Sprintf("[placeholder] No results found for '%s'. Internal DB not yet connected.", query), nil
}
