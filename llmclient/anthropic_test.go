package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

type fakeMessagesAPI struct {
	calls   int
	failN   int
	resp    *anthropic.Message
	lastErr error
}

func (f *fakeMessagesAPI) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("transport error")
	}
	return f.resp, f.lastErr
}

func textMessage(text string) *anthropic.Message {
	var block anthropic.ContentBlockUnion
	block.Type = "text"
	block.Text = text
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{block}}
}

func toolUseMessage(name, input string) *anthropic.Message {
	var block anthropic.ContentBlockUnion
	block.Type = "tool_use"
	block.Name = name
	block.Input = []byte(input)
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{block}}
}

func TestChatReturnsConcatenatedText(t *testing.T) {
	fake := &fakeMessagesAPI{resp: textMessage("hello there")}
	c := newWithAPI(fake, Config{}, zerolog.Nop())

	out, err := c.Chat(context.Background(), []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hello there" {
		t.Fatalf("unexpected output: %q", out)
	}
	if fake.calls != 1 {
		t.Fatalf("expected 1 call, got %d", fake.calls)
	}
}

func TestChatRetriesOnTransportError(t *testing.T) {
	fake := &fakeMessagesAPI{failN: 1, resp: textMessage("recovered")}
	c := newWithAPI(fake, Config{RetryInterval: 0}, zerolog.Nop())

	out, err := c.Chat(context.Background(), []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("unexpected output: %q", out)
	}
	if fake.calls != 2 {
		t.Fatalf("expected 2 calls (1 failure + 1 success), got %d", fake.calls)
	}
}

func TestChatExhaustsRetriesAndWrapsErrLLM(t *testing.T) {
	fake := &fakeMessagesAPI{failN: 10}
	c := newWithAPI(fake, Config{MaxRetries: 1, RetryInterval: 0}, zerolog.Nop())

	_, err := c.Chat(context.Background(), []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}})
	if !errors.Is(err, core.ErrLLM) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}
}

func TestJSONCompleteReturnsToolInput(t *testing.T) {
	fake := &fakeMessagesAPI{resp: toolUseMessage(distillToolName, `{"actions":[]}`)}
	c := newWithAPI(fake, Config{}, zerolog.Nop())

	out, err := c.JSONComplete(context.Background(), "extract memories", 256)
	if err != nil {
		t.Fatalf("JSONComplete: %v", err)
	}
	if out != `{"actions":[]}` {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestJSONCompleteFallsBackToTextIfToolIgnored(t *testing.T) {
	fake := &fakeMessagesAPI{resp: textMessage(`{"actions":[]}`)}
	c := newWithAPI(fake, Config{}, zerolog.Nop())

	out, err := c.JSONComplete(context.Background(), "extract memories", 256)
	if err != nil {
		t.Fatalf("JSONComplete: %v", err)
	}
	if out != `{"actions":[]}` {
		t.Fatalf("unexpected fallback output: %q", out)
	}
}

func TestSystemRoleMessagePromotedToSystemField(t *testing.T) {
	fake := &fakeMessagesAPI{resp: textMessage("ok")}
	c := newWithAPI(fake, Config{}, zerolog.Nop())

	params := c.buildParams([]core.ChatMessage{
		{Role: core.RoleSystem, Content: "you are a memory engine"},
		{Role: core.RoleUser, Content: "hi"},
	})
	if len(params.System) != 1 || params.System[0].Text != "you are a memory engine" {
		t.Fatalf("expected system message promoted, got %+v", params.System)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 non-system message, got %d", len(params.Messages))
	}
}
