package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yektayar/gateway/internal/gateway/event"
)

// Engine.IO v4 packet types, wire-encoded as a single leading digit.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Socket.IO packet types carried inside an Engine.IO message packet.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

// pollingSeparator joins multiple packets in one long-polling response body.
const pollingSeparator = "\x1e"

// openPayload is the JSON body of the Engine.IO open packet.
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// encodeOpen renders the open packet sent as the very first packet of every
// Engine.IO session.
func encodeOpen(p openPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode open packet: %w", err)
	}
	return string(eioOpen) + string(body), nil
}

// encodeEventPacket renders a frame as a Socket.IO event packet:
// message ('4') + event ('2') + ["name", data].
func encodeEventPacket(f *event.Frame) (string, error) {
	body, err := json.Marshal([]any{f.Event, f.Data})
	if err != nil {
		return "", fmt.Errorf("failed to encode event packet %q: %w", f.Event, err)
	}
	return string(eioMessage) + string(sioEvent) + string(body), nil
}

// encodeConnectAck renders the Socket.IO connect acknowledgement ("40{sid}").
func encodeConnectAck(sid string) string {
	return fmt.Sprintf(`%c%c{"sid":%q}`, eioMessage, sioConnect, sid)
}

// encodeConnectError renders a Socket.IO connect refusal carrying a
// client-safe message.
func encodeConnectError(message string) string {
	return fmt.Sprintf(`%c%c{"message":%q}`, eioMessage, sioConnectError, message)
}

// decodeEventPacket parses the body of a Socket.IO event packet (the part
// after "42") into an event name and its raw data.
func decodeEventPacket(body string) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(body), &parts); err != nil {
		return "", nil, fmt.Errorf("malformed event packet: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("malformed event packet: empty array")
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return "", nil, fmt.Errorf("malformed event packet: bad event name")
	}

	var data json.RawMessage
	if len(parts) > 1 {
		data = parts[1]
	}
	return name, data, nil
}

// splitPollingBody splits a long-polling request body into its packets.
func splitPollingBody(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, pollingSeparator)
}
