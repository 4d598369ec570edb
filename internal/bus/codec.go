package bus

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cortexrt/cortex/internal/envelope"
)

// PayloadCodec resolves between a concrete Message Go type and the wire
// identifier carried in the cortex-message-type transport header (§4.2b).
// The in-memory bus never needs this (messages stay as live Go values); only
// the AMQP-backed bus does.
type PayloadCodec struct {
	decoders map[string]func([]byte) (envelope.Message, error)
	names    map[reflect.Type]string
}

// NewPayloadCodec builds a codec with decoders for every concrete message
// type named in §3 already registered.
func NewPayloadCodec() *PayloadCodec {
	c := &PayloadCodec{
		decoders: make(map[string]func([]byte) (envelope.Message, error)),
		names:    make(map[reflect.Type]string),
	}
	c.Register("cortex.TextMessage", &envelope.TextMessage{}, decodeJSON[envelope.TextMessage])
	c.Register("cortex.PlanProposal", &envelope.PlanProposal{}, decodeJSON[envelope.PlanProposal])
	c.Register("cortex.PlanApprovalResponse", &envelope.PlanApprovalResponse{}, decodeJSON[envelope.PlanApprovalResponse])
	c.Register("cortex.SupervisionAlert", &envelope.SupervisionAlert{}, decodeJSON[envelope.SupervisionAlert])
	c.Register("cortex.EscalationAlert", &envelope.EscalationAlert{}, decodeJSON[envelope.EscalationAlert])
	return c
}

func decodeJSON[T any](data []byte) (envelope.Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return any(&v).(envelope.Message), nil
}

// Register adds a payload type to the codec. sample is used only to derive
// the Go type key for Name(); decode is used to reconstruct the payload from
// its JSON body when typeName is seen on the wire.
func (c *PayloadCodec) Register(typeName string, sample envelope.Message, decode func([]byte) (envelope.Message, error)) {
	t := reflect.TypeOf(sample)
	c.names[t] = typeName
	c.decoders[typeName] = decode
}

// Name returns the wire identifier for msg's concrete type.
func (c *PayloadCodec) Name(msg envelope.Message) (string, error) {
	name, ok := c.names[reflect.TypeOf(msg)]
	if !ok {
		return "", fmt.Errorf("bus: no registered wire name for payload type %T", msg)
	}
	return name, nil
}

// Decode reconstructs a Message from its wire type name and JSON body.
func (c *PayloadCodec) Decode(typeName string, body []byte) (envelope.Message, error) {
	decode, ok := c.decoders[typeName]
	if !ok {
		return nil, fmt.Errorf("bus: no registered decoder for payload type %q", typeName)
	}
	return decode(body)
}
