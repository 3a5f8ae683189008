package journal

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Flatten hoists an event's top-level identifying fields (type, run_id,
// step/event_id, channel) out to the top of its JSON-flattened payload, for
// SSE-style replay consumers that expect no nested "payload" key (§4.2).
//
// Rather than re-marshaling the payload map by hand, this walks the already
// JSON-valid payload with gjson and merges identifying fields in with sjson,
// which keeps the original key order and number formatting of whatever the
// kernel produced.
func Flatten(e *RunEvent) (map[string]any, error) {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	doc := payloadJSON
	doc, err = sjson.SetBytes(doc, "type", e.Type)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.SetBytes(doc, "run_id", e.RunID)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.SetBytes(doc, "event_id", e.EventID)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.SetBytes(doc, "channel", string(e.Channel))
	if err != nil {
		return nil, err
	}

	flattened := map[string]any{}
	gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
		flattened[key.String()] = value.Value()
		return true
	})
	return flattened, nil
}

// FlattenAll flattens a page of events in order.
func FlattenAll(events []*RunEvent) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		flat, err := Flatten(e)
		if err != nil {
			return nil, err
		}
		out = append(out, flat)
	}
	return out, nil
}
