package relayexec

import (
	"encoding/json"
	"strings"
)

// parseFrame decodes a relay wire frame (a JSON array whose first element is
// the frame type) without committing to a fixed shape per type, mirroring
// relaystore.go's own tolerant parsing of relay responses.
func parseFrame(data []byte) (kind string, rest []json.RawMessage, ok bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
		return "", nil, false
	}
	if err := json.Unmarshal(frame[0], &kind); err != nil {
		return "", nil, false
	}
	return kind, frame[1:], true
}

func decodeString(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func decodeBool(raw json.RawMessage) bool {
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b
}

// parseErrorPrefix extracts the NIP-01 machine-readable prefix from an OK or
// NOTICE message ("error: ...", "rate-limited: ...", "blocked: ...", ...),
// adapted from relaystore.go's prefixed-error classification.
func parseErrorPrefix(message string) string {
	idx := strings.Index(message, ":")
	if idx <= 0 {
		return ""
	}
	prefix := strings.TrimSpace(message[:idx])
	if strings.ContainsAny(prefix, " \t") {
		return ""
	}
	return prefix
}
