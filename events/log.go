package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// LogEmitter writes RunEvents as structured log lines, in JSON (one event
// per line) or a human-readable text form. Text mode renders a "duration_ms"
// field as a comma-grouped count (humanize.Comma) when the writer is a real terminal,
// so interactive runs read naturally while piped/redirected output stays
// exact and machine-diffable.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
	pretty   bool
}

// NewLogEmitter builds a LogEmitter writing to writer (os.Stdout if nil). In
// JSON mode every event is one compact JSON object per line; otherwise a
// "[type] run_id=... node_id=..." text form is used, with duration fields
// humanized only when writer is attached to a terminal.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	pretty := false
	if f, ok := writer.(*os.File); ok {
		pretty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode, pretty: pretty}
}

func (l *LogEmitter) Emit(event RunEvent) {
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event RunEvent) {
	data, err := json.Marshal(struct {
		RunID      string         `json:"run_id"`
		WorkflowID string         `json:"workflow_id"`
		NodeID     string         `json:"node_id"`
		Type       string         `json:"type"`
		Fields     map[string]any `json:"fields"`
	}{event.RunID, event.WorkflowID, event.NodeID, event.Type, event.Fields})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event RunEvent) {
	_, _ = fmt.Fprintf(l.writer, "[%s] run_id=%s workflow_id=%s", event.Type, event.RunID, event.WorkflowID)
	if event.NodeID != "" {
		_, _ = fmt.Fprintf(l.writer, " node_id=%s", event.NodeID)
	}

	if l.pretty {
		if ms, ok := event.Fields["duration_ms"]; ok {
			if millis, ok := toInt64(ms); ok {
				_, _ = fmt.Fprintf(l.writer, " duration=%s", humanize.Comma(millis)+"ms")
			}
		}
	}

	if len(event.Fields) > 0 {
		if data, err := json.Marshal(event.Fields); err == nil {
			_, _ = fmt.Fprintf(l.writer, " fields=%s", data)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func (l *LogEmitter) EmitBatch(_ context.Context, evs []RunEvent) error {
	for _, ev := range evs {
		l.Emit(ev)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal
// buffer. Wrap writer in a bufio.Writer and flush that directly if needed.
func (l *LogEmitter) Flush(context.Context) error { return nil }
