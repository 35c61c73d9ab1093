package sse

import (
	"encoding/json"
	"fmt"
)

// Done is the terminator frame of an SSE stream.
var Done = []byte("data: [DONE]\n\n")

// Frame wraps an already-encoded JSON payload as a single SSE data frame.
func Frame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, '\n', '\n')
}

// Encode marshals v and wraps it as an SSE data frame.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal SSE payload: %w", err)
	}
	return Frame(payload), nil
}
