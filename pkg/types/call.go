package types

import (
	"encoding/json"
	"errors"
)

// Call is a single remote procedure call inside a batch. Input is sent as-is
// inside the {"json": ...} envelope. Meta is optional and only used by
// procedures that expect superjson metadata next to the payload.
type Call struct {
	Procedure string
	Input     any
	Meta      any
}

// NewCall returns a Call without metadata.
func NewCall(procedure string, input any) Call {
	return Call{Procedure: procedure, Input: input}
}

// Result is the decoded value of one line of a batch response. When the line
// could not be parsed Fallback is true, Value is nil and Raw still holds the
// line.
type Result struct {
	Value    any
	Raw      string
	Fallback bool
}

// Decode unmarshals the raw line into dest.
func (r Result) Decode(dest any) error {
	if r.Fallback {
		return errors.New("result is an unparsed line")
	}
	return json.Unmarshal([]byte(r.Raw), dest)
}

// MarshalJSON writes the decoded value, or the raw line as a JSON string when
// the line could not be parsed.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Fallback {
		return json.Marshal(r.Raw)
	}
	if r.Raw == "" {
		return json.Marshal(r.Value)
	}
	return []byte(r.Raw), nil
}

// UnmarshalJSON is the inverse of MarshalJSON. A JSON string is kept as a
// regular value since the two cannot be told apart after a round trip.
func (r *Result) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.Value = v
	r.Raw = string(data)
	r.Fallback = false
	return nil
}
