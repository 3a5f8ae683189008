package kernel

// Error is a typed, machine-readable rejection raised by the validator or
// the execution kernel. Code is stable across versions so callers can
// switch on it rather than parsing Message.
type Error struct {
	Message string
	Code    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Validation rejection codes (§4.7).
const (
	CodeNoStartNode        = "no_start_node"
	CodeNoEndNode          = "no_end_node"
	CodeUnreachableEnd     = "unreachable_end"
	CodeCyclicGraph        = "cyclic_graph"
	CodeUnknownNodeType    = "unknown_node_type"
	CodeToolNotFound       = "tool_not_found"
	CodeToolDeprecated     = "tool_deprecated"
	CodeInvalidNodeConfig  = "invalid_node_config"
	CodeDanglingEdge       = "dangling_edge"
)

// Execution rejection / termination codes (§4.8, §4.9).
const (
	CodeDuplicateExecution       = "duplicate_execution"
	CodeRunNotFound              = "run_not_found"
	CodeRunWrongWorkflow         = "run_wrong_workflow"
	CodeRunNotExecutable         = "run_not_executable"
	CodeInvalidExecutionEvent    = "invalid_execution_event_type"
	CodeMissingTerminalEvent     = "missing_terminal_event"
	CodePatchScopeViolation      = "patch_scope_violation"
	CodeStreamCancelled          = "stream_cancelled"
	CodeConfirmTimeout           = "confirm_timeout"
	CodeSideEffectConfirmDenied  = "side_effect_confirm_denied"
)
