package events

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	TypeName string          `json:"typeName"`
	Payload  json.RawMessage `json:"payload"`
}

// Encode returns the routing key and body for e.
func Encode(e Event) (string, []byte, error) {
	if e == nil {
		return "", nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	kind := e.Kind()
	if !kind.Valid() {
		return "", nil, fmt.Errorf("%w: channel=%q typeName=%q", ErrInvalidEvent, kind.Channel, kind.TypeName)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, kind, err)
	}
	body, err := json.Marshal(envelope{TypeName: kind.TypeName, Payload: payload})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, kind, err)
	}
	return kind.RoutingKey(), body, nil
}

// decodeEnvelope parses body and checks that its type tag matches kind.
// A mismatch is reported with matched=false and no error.
func decodeEnvelope(kind Kind, body []byte) (payload json.RawMessage, matched bool, err error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if env.TypeName == "" {
		return nil, false, fmt.Errorf("%w: missing typeName", ErrMalformedMessage)
	}
	if env.TypeName != kind.TypeName {
		return nil, false, nil
	}
	return env.Payload, true, nil
}

// Decode parses body as an event of kind using the payload type registered
// in reg.
func Decode(reg *Registry, kind Kind, body []byte) (Event, error) {
	payload, matched, err := decodeEnvelope(kind, body)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, fmt.Errorf("%w: type tag does not match %s", ErrMalformedMessage, kind)
	}
	return decodePayload(reg, kind, payload)
}

func decodePayload(reg *Registry, kind Kind, payload json.RawMessage) (Event, error) {
	factory, ok := reg.lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	e := factory()
	if len(payload) == 0 || string(payload) == "null" {
		return nil, fmt.Errorf("%w: empty payload for %s", ErrMalformedMessage, kind)
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, kind, err)
	}
	return e, nil
}
