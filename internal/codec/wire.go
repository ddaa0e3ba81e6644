package codec

import (
	"encoding/json"
	"fmt"

	"pumpmonitor/internal/domain"
)

// ActionSetFilter is the only control action clients may send.
const ActionSetFilter = "SetFilter"

// ClientMessage is a decoded client control message.
type ClientMessage struct {
	Action string                `json:"action"`
	Filter domain.FilterCriteria `json:"filter"`
}

// EncodeEvent serializes an event to its wire JSON form. The fan-out loop
// encodes once per event and shares the bytes across sessions.
func EncodeEvent(event *domain.TokenCreatedEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// DecodeClientMessage parses a client control message. The action must be
// SetFilter and the filter object must be present; anything else is an
// error the session logs without disconnecting the client.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var raw struct {
		Action string           `json:"action"`
		Filter *json.RawMessage `json:"filter"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse client message: %w", err)
	}

	if raw.Action != ActionSetFilter {
		return nil, fmt.Errorf("unknown action %q", raw.Action)
	}
	if raw.Filter == nil {
		return nil, fmt.Errorf("action %s requires a filter object", ActionSetFilter)
	}

	msg := &ClientMessage{Action: raw.Action}
	if err := json.Unmarshal(*raw.Filter, &msg.Filter); err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	return msg, nil
}
