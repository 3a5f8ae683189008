package bus

// DecisionMadeEvent is published when a candidate decision is proposed, before
// any coordinator middleware has validated it.
type DecisionMadeEvent struct {
	Source             string
	WorkflowID         string
	DecisionType       string // e.g. "execute_workflow"
	CorrelationID      string
	OriginalDecisionID string
	Payload            map[string]any
}

// DecisionValidatedEvent is published when a DecisionCoordinator's validators
// all allow a DecisionMadeEvent through.
type DecisionValidatedEvent struct {
	DecisionMadeEvent
}

// DecisionRejectedEvent is published in place of DecisionValidatedEvent when
// a validator blocks a DecisionMadeEvent.
type DecisionRejectedEvent struct {
	DecisionMadeEvent
	Reason string
}

// ExecutionResultEvent reports the outcome of a DecisionBridge-invoked
// handler run.
type ExecutionResultEvent struct {
	Status        string // "succeeded" | "failed"
	CorrelationID string
	RunID         string
	WorkflowID    string
	Error         string
	Result        map[string]any
}

// WorkflowAdjustmentRequestedEvent is the REPLAN domain event published by
// the acceptance loop orchestrator (C10) at most once per reflection_id; a
// DecisionBridge subscriber turns it into a new execute_workflow decision.
type WorkflowAdjustmentRequestedEvent struct {
	Source            string
	WorkflowID        string
	FailedNodeID      string
	FailureReason     string
	SuggestedAction   string
	ExecutionContext  map[string]any
}
