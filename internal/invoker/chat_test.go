package invoker

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type stubModel struct {
	got   []*schema.Message
	reply *schema.Message
	err   error
}

func (s *stubModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.got = input
	return s.reply, s.err
}

func TestChatBackend_Complete(t *testing.T) {
	stub := &stubModel{reply: schema.AssistantMessage("hi there", nil)}
	var gotModel string
	b := NewChatBackend("test", func(_ context.Context, id string) (ChatModel, error) {
		gotModel = id
		return stub, nil
	})

	out, err := b.Complete(context.Background(), Request{MemberID: "anthropic/claude", System: "sys", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hi there" {
		t.Errorf("output = %q", out)
	}
	if gotModel != "anthropic/claude" {
		t.Errorf("model id = %q", gotModel)
	}
	if len(stub.got) != 2 || stub.got[0].Role != schema.System || stub.got[1].Role != schema.User {
		t.Errorf("unexpected messages: %+v", stub.got)
	}
}

func TestChatBackend_NoSystemMessage(t *testing.T) {
	stub := &stubModel{reply: schema.AssistantMessage("ok", nil)}
	b := NewChatBackend("test", func(context.Context, string) (ChatModel, error) { return stub, nil })

	if _, err := b.Complete(context.Background(), Request{MemberID: "m", Prompt: "p"}); err != nil {
		t.Fatal(err)
	}
	if len(stub.got) != 1 {
		t.Errorf("messages = %d, want 1", len(stub.got))
	}
}

func TestChatBackend_Errors(t *testing.T) {
	t.Run("factory", func(t *testing.T) {
		b := NewChatBackend("test", func(context.Context, string) (ChatModel, error) {
			return nil, errors.New("bad config")
		})
		if _, err := b.Complete(context.Background(), Request{MemberID: "m", Prompt: "p"}); err == nil {
			t.Error("expected factory error")
		}
	})
	t.Run("generate", func(t *testing.T) {
		stub := &stubModel{err: errors.New("rate limited")}
		b := NewChatBackend("test", func(context.Context, string) (ChatModel, error) { return stub, nil })
		if _, err := b.Complete(context.Background(), Request{MemberID: "m", Prompt: "p"}); err == nil {
			t.Error("expected generate error")
		}
	})
	t.Run("nil message", func(t *testing.T) {
		stub := &stubModel{}
		b := NewChatBackend("test", func(context.Context, string) (ChatModel, error) { return stub, nil })
		if _, err := b.Complete(context.Background(), Request{MemberID: "m", Prompt: "p"}); err == nil {
			t.Error("expected error for nil message")
		}
	})
}
