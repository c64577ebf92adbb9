package domain

import (
	"slices"
	"strings"
	"time"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketEscalated  TicketStatus = "escalated"
)

// TicketPriority orders tickets for human attention.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
)

// TicketCategory classifies the request.
type TicketCategory string

const (
	CategoryGeneral   TicketCategory = "general"
	CategoryTechnical TicketCategory = "technical"
	CategoryBilling   TicketCategory = "billing"
	CategoryFeedback  TicketCategory = "feedback"
	CategoryBugReport TicketCategory = "bug_report"
)

// EscalationRoute names the human team a ticket is handed to.
type EscalationRoute string

const (
	RouteLegal     EscalationRoute = "legal"
	RouteBilling   EscalationRoute = "billing"
	RouteTechnical EscalationRoute = "technical"
	RouteSales     EscalationRoute = "sales"
)

// Ticket is a trackable support request bound to one conversation.
// CustomerID is denormalized from the conversation and must match it.
type Ticket struct {
	ID                 string          `json:"id"`
	ConversationID     string          `json:"conversation_id"`
	CustomerID         string          `json:"customer_id"`
	SourceChannel      Channel         `json:"source_channel"`
	Category           TicketCategory  `json:"category"`
	Priority           TicketPriority  `json:"priority"`
	Status             TicketStatus    `json:"status"`
	ResolutionNotes    string          `json:"resolution_notes,omitempty"`
	ResolutionAttempts int             `json:"resolution_attempts"`
	EscalationReason   string          `json:"escalation_reason,omitempty"`
	EscalationRoute    EscalationRoute `json:"escalation_route,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
}

// Resolution is terminal: no transition leaves resolved. Escalation is
// reachable from any non-resolved state; reopening is an external
// workflow, not modeled here.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:       {TicketInProgress, TicketEscalated, TicketResolved},
	TicketInProgress: {TicketEscalated, TicketResolved},
	TicketEscalated:  {TicketResolved},
	TicketResolved:   {},
}

// CanTransition reports whether from → to is a legal ticket transition.
func CanTransition(from, to TicketStatus) bool {
	return slices.Contains(ticketTransitions[from], to)
}

// CategoryForIntent maps a responder intent label onto a ticket category.
// Unrecognized intents stay general.
func CategoryForIntent(intent string) TicketCategory {
	s := strings.ToLower(strings.TrimSpace(intent))
	switch {
	case s == "":
		return CategoryGeneral
	case strings.Contains(s, "bug") || strings.Contains(s, "defect"):
		return CategoryBugReport
	case strings.Contains(s, "billing") || strings.Contains(s, "payment") ||
		strings.Contains(s, "invoice") || strings.Contains(s, "refund") ||
		strings.Contains(s, "pricing"):
		return CategoryBilling
	case strings.Contains(s, "technical") || strings.Contains(s, "support") ||
		strings.Contains(s, "outage") || strings.Contains(s, "error"):
		return CategoryTechnical
	case strings.Contains(s, "feedback") || strings.Contains(s, "feature") ||
		strings.Contains(s, "suggestion"):
		return CategoryFeedback
	}
	return CategoryGeneral
}
