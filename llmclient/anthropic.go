// Package llmclient adapts github.com/anthropics/anthropic-sdk-go to
// core.ChatClient and core.JSONClient. Provider-specific concerns (model
// name, token limits, retry-on-transport-error) live here so core and its
// consumers never import the SDK directly.
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-3-5-sonnet-latest"

// Config configures the Anthropic-backed client.
type Config struct {
	Model         string
	MaxTokens     int64
	MaxRetries    int
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	return c
}

// messagesAPI is the slice of *anthropic.Client this package depends on.
// Narrowing to an interface lets tests substitute a fake without a live API
// key or network access.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client wraps an *anthropic.Client to satisfy core.ChatClient and
// core.JSONClient.
type Client struct {
	sdk messagesAPI
	cfg Config
	log zerolog.Logger
}

// New wraps an already-constructed Anthropic SDK client. Callers build sdk
// with anthropic.NewClient(option.WithAPIKey(...)) so API key handling stays
// out of this package.
func New(sdk *anthropic.Client, cfg Config, log zerolog.Logger) *Client {
	return &Client{sdk: &sdk.Messages, cfg: cfg.withDefaults(), log: log}
}

// newWithAPI is used by tests to inject a fake messagesAPI.
func newWithAPI(api messagesAPI, cfg Config, log zerolog.Logger) *Client {
	return &Client{sdk: api, cfg: cfg.withDefaults(), log: log}
}

// Chat sends messages as a single Anthropic Messages.New call, with the
// leading system-role message (if any) promoted to the API's dedicated
// system field.
func (c *Client) Chat(ctx context.Context, messages []core.ChatMessage) (string, error) {
	params := c.buildParams(messages)

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrLLM, err)
	}

	text := concatText(resp)
	c.log.Debug().Int("input_tokens", int(resp.Usage.InputTokens)).Int("output_tokens", int(resp.Usage.OutputTokens)).Msg("llmclient: chat complete")
	return text, nil
}

// distillToolName is the name of the tool JSONComplete forces the model to
// call, so the response arrives as validated tool_use input rather than
// prose the caller has to hope is JSON.
const distillToolName = "emit_delta"

// JSONComplete sends prompt as the sole user message with a single tool
// defined and tool_choice forced to it, so the SDK-parsed response is a
// tool_use block whose input is already JSON. The caller (distiller) is
// still responsible for validating the delta shape and repairing a
// truncated response. When the reply has a tool_use block, its JSON input
// is returned; otherwise the reply's text blocks are returned unchecked.
func (c *Client) JSONComplete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	tool := anthropic.ToolParam{
		Name:        distillToolName,
		Description: anthropic.String("Records the memory actions distilled from the conversation window."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
		},
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(maxTokens),
		Tools:     []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: distillToolName},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrLLM, err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			return string(block.Input), nil
		}
	}
	// The model ignored the forced tool choice; fall back to whatever text
	// it produced so the distiller's JSON repair still gets a chance.
	return concatText(resp), nil
}

// concatText joins every text content block in a response, in order,
// matching the union-type field access responseToBlocks-style code uses
// elsewhere against this SDK (block.Type, block.Text).
func concatText(resp *anthropic.Message) string {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}

func (c *Client) buildParams(messages []core.ChatMessage) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
	}

	apiMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case core.RoleAssistant:
			apiMessages = append(apiMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			apiMessages = append(apiMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params.Messages = apiMessages
	return params
}

func (c *Client) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryInterval):
			}
		}
		resp, err := c.sdk.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.log.Warn().Int("attempt", attempt+1).Err(err).Msg("llmclient: retrying after transport error")
	}
	return nil, lastErr
}
