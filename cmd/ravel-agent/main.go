// Command ravel-agent is a small demonstration of driving the tool
// registry from an Anthropic model's tool-calling loop instead of a
// human CLI. It exposes a deliberately narrow subset of the 13 tools
// (get_next_item, get_context, advance_item) so a model can pick up
// the most actionable item, read its gate/blocker context, and move
// it forward — the "LLM tool-calling demo" row of SPEC_FULL.md §10.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ravelhq/ravel/internal/config"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/server"
	"github.com/ravelhq/ravel/internal/store/sqlite"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxTurns       = 8
)

var errAPIKeyRequired = errors.New("API key required")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ravel-agent:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		return fmt.Errorf("usage: ravel-agent <instruction>")
	}
	instruction := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	schema, err := noteschema.Load(cfg.NoteSchemaPath)
	if err != nil {
		return fmt.Errorf("loading note schema: %w", err)
	}

	srv := server.New(st, schema, nil, 1)

	client, err := newAgentClient("")
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	return client.run(ctx, srv, instruction, out)
}

// agentClient wraps the Anthropic API for the tool-calling loop,
// retrying retryable errors with exponential backoff.
type agentClient struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

func newAgentClient(apiKey string) (*agentClient, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", errAPIKeyRequired)
	}

	model := anthropic.Model(os.Getenv("RAVEL_AGENT_MODEL"))
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}

	return &agentClient{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          model,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

func (a *agentClient) run(ctx context.Context, srv *server.Server, instruction string, out *bufio.Writer) error {
	tools := agentTools()
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(instruction)),
	}

	for turn := 0; turn < maxTurns; turn++ {
		message, err := a.callWithRetry(ctx, messages, tools)
		if err != nil {
			return fmt.Errorf("turn %d: %w", turn, err)
		}
		messages = append(messages, message.ToParam())

		var toolResults []anthropic.ContentBlockParamUnion
		sawToolUse := false

		for _, block := range message.Content {
			switch block.Type {
			case "text":
				fmt.Fprintln(out, block.Text)
			case "tool_use":
				sawToolUse = true
				result, isErr := dispatchTool(ctx, srv, block.Name, block.Input)
				fmt.Fprintf(out, "[tool %s -> %s]\n", block.Name, truncate(result, 200))
				toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, result, isErr))
			}
		}
		out.Flush()

		if !sawToolUse || message.StopReason != anthropic.StopReasonToolUse {
			return nil
		}
		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	return fmt.Errorf("exceeded %d turns without a final answer", maxTurns)
}

// dispatchTool runs one model-requested tool call against the server
// and renders its envelope as the tool_result content, returning
// whether the result represents an error for the model's benefit.
func dispatchTool(ctx context.Context, srv *server.Server, name string, input json.RawMessage) (string, bool) {
	if !allowedTools[name] {
		return fmt.Sprintf("tool %q is not available to this agent", name), true
	}
	env := srv.Dispatch(ctx, name, input)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Sprintf("marshaling result: %v", err), true
	}
	return string(body), !env.Success
}

var allowedTools = map[string]bool{
	"get_next_item": true,
	"get_context":   true,
	"advance_item":  true,
}

func agentTools() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{OfTool: &anthropic.ToolParam{
			Name:        "get_next_item",
			Description: anthropic.String("Return the single most actionable, unblocked work item across the whole tree."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: map[string]any{},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "get_context",
			Description: anthropic.String("Return an item's full session-resume bundle: the item, its gate status, parent, children, and blockers."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"itemId": map[string]any{"type": "string", "description": "work item id"},
				},
				Required: []string{"itemId"},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "advance_item",
			Description: anthropic.String("Fire a role-transition trigger (start|complete|block|hold|resume|cancel) on one item, subject to its gate and dependency state."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"itemId":  map[string]any{"type": "string"},
					"trigger": map[string]any{"type": "string", "enum": []string{"start", "complete", "block", "hold", "resume", "cancel"}},
					"summary": map[string]any{"type": "string", "description": "optional note attached to the transition"},
				},
				Required: []string{"itemId", "trigger"},
			},
		}},
	}
}

func (a *agentClient) callWithRetry(ctx context.Context, messages []anthropic.MessageParam, tools []anthropic.ToolUnionParam) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		Messages:  messages,
		Tools:     tools,
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", a.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
