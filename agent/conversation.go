package agent

import (
	"context"

	"github.com/dshills/workflowcore/llm"
	"github.com/dshills/workflowcore/run"
)

// ConversationAgent wraps a llm.ChatModel with the agent-run lifecycle:
// every turn is tracked as its own Run (StatusPending -> StatusRunning ->
// StatusSucceeded|StatusFailed, where a workflow Run goes StatusCreated ->
// StatusRunning -> StatusCompleted|StatusFailed), so a conversation agent's activity shows up in run.Repository
// alongside workflow runs rather than as an invisible side channel.
type ConversationAgent struct {
	ID           string
	Model        llm.ChatModel
	Runs         run.Repository
	SystemPrompt string
}

// NewConversationAgent builds a ConversationAgent bound to id, backed by
// model for completions and runs for lifecycle tracking.
func NewConversationAgent(id string, model llm.ChatModel, runs run.Repository, systemPrompt string) *ConversationAgent {
	return &ConversationAgent{ID: id, Model: model, Runs: runs, SystemPrompt: systemPrompt}
}

// Converse records one agent Run for a single turn of history, sends it to
// the backing model, and transitions the Run to its terminal state before
// returning. A model error fails the Run but is also returned to the
// caller — the Run record is an audit trail, not a substitute for error
// handling at the call site.
func (a *ConversationAgent) Converse(ctx context.Context, projectID, workflowID string, history []llm.Message) (llm.ChatOut, error) {
	r, err := run.CreateAgent(a.ID, projectID, workflowID)
	if err != nil {
		return llm.ChatOut{}, err
	}
	if err := a.Runs.Save(ctx, r); err != nil {
		return llm.ChatOut{}, err
	}

	if err := r.Start(); err != nil {
		return llm.ChatOut{}, err
	}
	if err := a.Runs.Save(ctx, r); err != nil {
		return llm.ChatOut{}, err
	}

	messages := history
	if a.SystemPrompt != "" {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: a.SystemPrompt}}, history...)
	}

	out, chatErr := a.Model.Chat(ctx, messages, nil)
	if chatErr != nil {
		_ = r.Fail(chatErr.Error())
		_ = a.Runs.Save(ctx, r)
		return llm.ChatOut{}, chatErr
	}

	if err := r.Succeed(); err != nil {
		return out, err
	}
	if err := a.Runs.Save(ctx, r); err != nil {
		return out, err
	}
	return out, nil
}
