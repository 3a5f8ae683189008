package llm

import (
	"context"
	"fmt"

	"github.com/dshills/workflowcore/kernel"
)

// stateKeyPrompt and stateKeyReply are the conventional state keys an LLM
// node reads its input from and writes its output to, mirroring how tool
// and HTTP node executors key their own state fields.
const (
	stateKeyPrompt = "prompt"
	stateKeyReply  = "reply"
)

// NodeExecutor implements kernel.NodeExecutor for kernel.NodeTypeLLM nodes,
// resolving node.Config.ModelProvider (already allowlist-checked by
// kernel.Validate) against a Registry and forwarding the running state's
// prompt as a single user message.
type NodeExecutor struct {
	Models *Registry
}

// NewNodeExecutor builds a NodeExecutor backed by models.
func NewNodeExecutor(models *Registry) *NodeExecutor {
	return &NodeExecutor{Models: models}
}

// Execute implements kernel.NodeExecutor.
func (e *NodeExecutor) Execute(ctx context.Context, node kernel.WorkflowNode, state map[string]any) kernel.NodeOutcome {
	model, ok := e.Models.Resolve(node.Config.ModelProvider, node.Config.Extra["model"])
	if !ok {
		return kernel.NodeOutcome{
			Err:       fmt.Errorf("llm node %s: no model registered for provider %q", node.ID, node.Config.ModelProvider),
			ErrorType: "model_not_found",
			Retryable: false,
		}
	}

	messages := buildMessages(node, state)

	out, err := model.Chat(ctx, messages, nil)
	if err != nil {
		return kernel.NodeOutcome{
			Err:       err,
			ErrorType: classifyError(ctx, err),
			Retryable: ctx.Err() == nil,
		}
	}

	output := map[string]any{stateKeyReply: out.Text}
	if len(out.ToolCalls) > 0 {
		output["tool_calls"] = out.ToolCalls
	}
	return kernel.NodeOutcome{Output: output}
}

// buildMessages assembles the conversation sent to the model: an optional
// system prompt from the node's Extra config, followed by the running
// state's prompt field as a single user turn.
func buildMessages(node kernel.WorkflowNode, state map[string]any) []Message {
	var messages []Message
	if system := node.Config.Extra["system_prompt"]; system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}

	prompt, _ := state[stateKeyPrompt].(string)
	messages = append(messages, Message{Role: RoleUser, Content: prompt})
	return messages
}

// classifyError maps a Chat error to the repair loop's error-type taxonomy.
// Context deadline/cancellation is reported as "timeout" so the orchestrator
// config-only patch policy can widen the node's timeout; everything else is
// treated as an unrepairable provider error.
func classifyError(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "timeout"
	}
	_ = err
	return "llm_provider_error"
}
