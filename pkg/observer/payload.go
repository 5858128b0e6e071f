package observer

import (
	"encoding/json"
	"time"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Payload is the wire form of an occurrence used by the Redis sink and the
// HTTP event stream. Guards and actions are not serialized.
type Payload struct {
	Kind      string    `json:"kind"`
	MachineID string    `json:"machine_id"`
	State     string    `json:"state,omitempty"`
	Event     string    `json:"event,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPayload converts an occurrence into its wire form.
func NewPayload(occ statemachine.Occurrence) Payload {
	p := Payload{
		Kind:      occ.Kind.String(),
		MachineID: occ.MachineID,
		Sequence:  occ.Sequence,
		Timestamp: occ.Timestamp.UTC(),
	}
	if occ.State != nil {
		p.State = occ.State.Name()
	}
	if occ.Event != nil {
		p.Event = occ.Event.Name()
	}
	if occ.Transition != nil {
		p.From = occ.Transition.From.Name()
		p.To = occ.Transition.To.Name()
	}
	return p
}

// Marshal encodes the payload as JSON.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a JSON payload produced by Marshal.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}
