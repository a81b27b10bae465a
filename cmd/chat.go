package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// chatCMD is a small terminal client for the /completions endpoint. With
// --debug it prints the middleware event trace after each reply.
func chatCMD() *cobra.Command {
	var baseURL string
	var threadID string
	var debug bool

	var chat = &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running ava server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if threadID == "" {
				threadID = uuid.NewString()
			}
			client := &http.Client{Timeout: 5 * time.Minute}
			fmt.Printf("thread %s (ctrl-d to quit)\n", threadID)

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Print("you> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				reply, events, err := postCompletion(client, baseURL, threadID, input)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				fmt.Printf("ava> %s\n", reply)
				if debug {
					for _, e := range events {
						fmt.Printf("  [%s/%s] %s\n", e.Middleware, e.Status, e.Message)
					}
				}
			}
		},
	}
	chat.Flags().StringVar(&baseURL, "url", "http://localhost:8000", "server base URL")
	chat.Flags().StringVar(&threadID, "thread", "", "thread id (default: a fresh UUID)")
	chat.Flags().BoolVar(&debug, "debug", false, "print the middleware event trace")

	return chat
}

type chatEvent struct {
	Middleware string `json:"middleware"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func postCompletion(client *http.Client, baseURL, threadID, input string) (string, []chatEvent, error) {
	body, err := json.Marshal(map[string]string{"thread_id": threadID, "input": input})
	if err != nil {
		return "", nil, err
	}
	resp, err := client.Post(strings.TrimRight(baseURL, "/")+"/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			return "", nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
		}
		return "", nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		MiddlewareEvents []chatEvent `json:"middleware_events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", nil, err
	}
	if len(payload.Choices) == 0 {
		return "", nil, fmt.Errorf("empty response")
	}
	return payload.Choices[0].Message.Content, payload.MiddlewareEvents, nil
}
