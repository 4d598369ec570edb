package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Message is the minimal capability set every envelope payload implements.
// Concrete payload types are free to carry any additional fields the
// application needs.
type Message interface {
	MessageID() string
	Timestamp() time.Time
	CorrelationID() string
}

// TextContent is implemented by payload types that can be flattened into a
// plain-text body for aggregation (see skillagent's sub-task reply branch).
// Payload types that do not implement it are rendered with fmt's %+v verb.
type TextContent interface {
	TextContent() (string, bool)
}

func newMessageID() string {
	return uuid.NewString()
}

// base carries the fields every concrete message embeds. Fields are exported
// so that a concrete message round-trips through encoding/json (the AMQP
// bus's wire format) without a hand-written Marshal/Unmarshal pair.
type base struct {
	ID          string
	At          time.Time
	Correlation string
}

func newBase(correlationID string) base {
	return base{
		ID:          newMessageID(),
		At:          time.Now(),
		Correlation: correlationID,
	}
}

func (b base) MessageID() string     { return b.ID }
func (b base) Timestamp() time.Time  { return b.At }
func (b base) CorrelationID() string { return b.Correlation }

// TextMessage is a plain-text payload, used for chat turns, rejection
// notices, and assembled aggregation results.
type TextMessage struct {
	base
	Text string
}

func NewTextMessage(text, correlationID string) *TextMessage {
	return &TextMessage{base: newBase(correlationID), Text: text}
}

func (m *TextMessage) TextContent() (string, bool) { return m.Text, true }

// TaskDescription is one line item inside a PlanProposal.
type TaskDescription struct {
	Capability  string
	Description string
}

// PlanProposal is published to an AskMeFirst escalation target when a
// decomposition requires approval before dispatch.
type PlanProposal struct {
	base
	Summary               string
	TaskDescriptions      []TaskDescription
	OriginalGoal          string
	WorkflowReferenceCode ReferenceCode
}

func NewPlanProposal(summary, originalGoal string, tasks []TaskDescription, workflowRef ReferenceCode, correlationID string) *PlanProposal {
	return &PlanProposal{
		base:                  newBase(correlationID),
		Summary:               summary,
		TaskDescriptions:      tasks,
		OriginalGoal:          originalGoal,
		WorkflowReferenceCode: workflowRef,
	}
}

// PlanApprovalResponse answers a PlanProposal.
type PlanApprovalResponse struct {
	base
	WorkflowReferenceCode ReferenceCode
	Approved              bool
	RejectionReason       string
}

func NewPlanApprovalResponse(workflowRef ReferenceCode, approved bool, rejectionReason, correlationID string) *PlanApprovalResponse {
	return &PlanApprovalResponse{
		base:                  newBase(correlationID),
		WorkflowReferenceCode: workflowRef,
		Approved:              approved,
		RejectionReason:       rejectionReason,
	}
}

// SupervisionAlert is published by the supervision service for an overdue
// delegation that has not yet exceeded the retry budget.
type SupervisionAlert struct {
	base
	ReferenceCode  ReferenceCode
	DelegatedTo    string
	Description    string
	RetryCount     int
	DueAt          time.Time
	IsAgentRunning bool
}

func NewSupervisionAlert(ref ReferenceCode, delegatedTo, description string, retryCount int, dueAt time.Time, isAgentRunning bool, correlationID string) *SupervisionAlert {
	return &SupervisionAlert{
		base:           newBase(correlationID),
		ReferenceCode:  ref,
		DelegatedTo:    delegatedTo,
		Description:    description,
		RetryCount:     retryCount,
		DueAt:          dueAt,
		IsAgentRunning: isAgentRunning,
	}
}

// EscalationAlert is published by the supervision service once a delegation's
// retry budget has been exhausted.
type EscalationAlert struct {
	base
	ReferenceCode ReferenceCode
	DelegatedTo   string
	Description   string
	Reason        string
}

func NewEscalationAlert(ref ReferenceCode, delegatedTo, description, reason, correlationID string) *EscalationAlert {
	return &EscalationAlert{
		base:          newBase(correlationID),
		ReferenceCode: ref,
		DelegatedTo:   delegatedTo,
		Description:   description,
		Reason:        reason,
	}
}
