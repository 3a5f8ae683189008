// Package mock provides a deterministic ChatModel for tests and the
// engine's e2e test mode.
package mock

import (
	"context"
	"sync"

	"github.com/dshills/workflowcore/llm"
)

// ChatModel is a scriptable test double: it returns a configured sequence
// of responses, repeating the last one once exhausted, and records every
// call it receives.
//
// Use it to verify workflow behavior without making real provider calls:
//
//	m := &ChatModel{Responses: []llm.ChatOut{{Text: "ack"}}}
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	// Responses is the sequence returned in order; the last one repeats
	// once the sequence is exhausted.
	Responses []llm.ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// Calls records every invocation for assertions.
	Calls []Call

	mu        sync.Mutex
	callIndex int
}

// Call records a single Chat invocation.
type Call struct {
	Messages []llm.Message
	Tools    []llm.ToolSpec
}

// New builds a ChatModel with no scripted responses: every Chat call
// returns an empty ChatOut until Responses is set.
// modelName is accepted for signature parity with the provider adapters'
// NewChatModel constructors but is otherwise unused.
func New(modelName string) *ChatModel {
	_ = modelName
	return &ChatModel{}
}

// Chat implements llm.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (llm.ChatOut, error) {
	if ctx.Err() != nil {
		return llm.ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, Call{Messages: messages, Tools: tools})

	if m.Err != nil {
		return llm.ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return llm.ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears call history and response index for reuse across test cases.
func (m *ChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns how many times Chat has been invoked.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
