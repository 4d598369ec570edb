package envelope

import "time"

// Priority is informational; the bus does not reorder on it.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Normal"
	}
}

// Context threads correlation and routing metadata alongside a message.
type Context struct {
	ParentMessageID string
	OriginalGoal    string
	TeamID          string
	ChannelID       string
	ReplyTo         string
	FromAgentID     string
}

// MessageEnvelope is the unit published on the bus. Envelopes are immutable;
// every With* method returns a new value with the named field(s) replaced.
type MessageEnvelope struct {
	Message         Message
	ReferenceCode   ReferenceCode
	AuthorityClaims []AuthorityClaim
	Context         Context
	Priority        Priority
	SLA             *time.Time
}

// New builds an envelope at Normal priority with no authority claims.
func New(message Message, referenceCode ReferenceCode, context Context) MessageEnvelope {
	return MessageEnvelope{
		Message:       message,
		ReferenceCode: referenceCode,
		Context:       context,
		Priority:      PriorityNormal,
	}
}

// WithContext returns a copy with Context replaced.
func (e MessageEnvelope) WithContext(c Context) MessageEnvelope {
	e.Context = c
	return e
}

// WithReferenceCode returns a copy with ReferenceCode replaced.
func (e MessageEnvelope) WithReferenceCode(r ReferenceCode) MessageEnvelope {
	e.ReferenceCode = r
	return e
}

// WithAuthorityClaims returns a copy with AuthorityClaims replaced. The slice
// is copied so the original envelope's claims remain untouched by later
// appends to the new one.
func (e MessageEnvelope) WithAuthorityClaims(claims []AuthorityClaim) MessageEnvelope {
	cp := make([]AuthorityClaim, len(claims))
	copy(cp, claims)
	e.AuthorityClaims = cp
	return e
}

// WithMessage returns a copy with Message replaced.
func (e MessageEnvelope) WithMessage(m Message) MessageEnvelope {
	e.Message = m
	return e
}

// AsReply produces the outbound envelope for a reply, per the harness's
// reply-routing rule (§4.3 step 4): the reference code carries over, the
// parent message ID is stamped from the incoming message, and fromAgentID is
// overwritten unconditionally.
func (e MessageEnvelope) AsReply(incoming MessageEnvelope, fromAgentID string) MessageEnvelope {
	ctx := e.Context
	ctx.ParentMessageID = incoming.Message.MessageID()
	ctx.FromAgentID = fromAgentID
	return e.WithReferenceCode(incoming.ReferenceCode).WithContext(ctx)
}
