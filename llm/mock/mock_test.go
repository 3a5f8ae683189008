package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/workflowcore/llm"
)

func TestChatModelSingleResponse(t *testing.T) {
	m := &ChatModel{Responses: []llm.ChatOut{{Text: "hello"}}}
	out, err := m.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != "hello" {
		t.Errorf("expected Text = hello, got %q", out.Text)
	}
}

func TestChatModelRepeatsLastResponseWhenExhausted(t *testing.T) {
	m := &ChatModel{Responses: []llm.ChatOut{{Text: "first"}, {Text: "second"}}}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "test"}}

	first, _ := m.Chat(context.Background(), msgs, nil)
	second, _ := m.Chat(context.Background(), msgs, nil)
	third, _ := m.Chat(context.Background(), msgs, nil)

	if first.Text != "first" || second.Text != "second" {
		t.Fatalf("expected sequence first,second got %q,%q", first.Text, second.Text)
	}
	if third.Text != "second" {
		t.Fatalf("expected repeat of last response, got %q", third.Text)
	}
}

func TestChatModelErrorTakesPrecedence(t *testing.T) {
	wantErr := errors.New("simulated failure")
	m := &ChatModel{Err: wantErr, Responses: []llm.ChatOut{{Text: "should not appear"}}}

	_, err := m.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestChatModelRecordsCallHistory(t *testing.T) {
	m := &ChatModel{Responses: []llm.ChatOut{{Text: "ok"}}}
	tools := []llm.ToolSpec{{Name: "search"}}

	_, _ = m.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "first"}}, nil)
	_, _ = m.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "second"}}, tools)

	if m.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", m.CallCount())
	}
	if len(m.Calls[1].Tools) != 1 {
		t.Fatalf("expected second call to carry 1 tool, got %d", len(m.Calls[1].Tools))
	}
}

func TestChatModelReset(t *testing.T) {
	m := &ChatModel{Responses: []llm.ChatOut{{Text: "first"}, {Text: "second"}}}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "x"}}

	_, _ = m.Chat(context.Background(), msgs, nil)
	m.Reset()

	out, _ := m.Chat(context.Background(), msgs, nil)
	if out.Text != "first" {
		t.Fatalf("expected first response after reset, got %q", out.Text)
	}
	if m.CallCount() != 1 {
		t.Fatalf("expected call count reset, got %d", m.CallCount())
	}
}

func TestChatModelConcurrentCallsAreSafe(t *testing.T) {
	m := &ChatModel{Responses: []llm.ChatOut{{Text: "ok"}}}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "x"}}

	const goroutines = 10
	done := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			_, _ = m.Chat(context.Background(), msgs, nil)
			done <- struct{}{}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
	if m.CallCount() != goroutines {
		t.Fatalf("expected %d calls, got %d", goroutines, m.CallCount())
	}
}
