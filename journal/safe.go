package journal

import "encoding/json"

// SafePayload defends lifecycle-event construction against
// non-JSON-serializable values leaking into a payload (a stray struct
// pointer forwarded from a kernel event, for instance). It round-trips
// through json.Marshal with a string fallback encoder so a single bad field
// can't fail an entire journal append.
func SafePayload(payload map[string]any) map[string]any {
	if _, err := json.Marshal(payload); err == nil {
		return payload
	}

	safe := make(map[string]any, len(payload))
	for k, v := range payload {
		if _, err := json.Marshal(v); err == nil {
			safe[k] = v
			continue
		}
		safe[k] = safeString(v)
	}
	return safe
}

func safeString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "<unserializable>"
}
