package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers value movement and governance changes. These
	// require durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers privilege changes relevant to monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic after a mutation commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// Actor is the identity that invoked the operation. Empty for keeper
	// cranks such as recurring payment processing.
	Actor string
	// Subject is the entity acted on, e.g. "proposal:7" or "role:GABC".
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// Attributes carries event-specific values (amount, token, tick).
	Attributes map[string]string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

type AuditEvent string

const (
	// Governance events
	EventVaultInitialized AuditEvent = "vault_initialized"
	EventConfigUpdated    AuditEvent = "config_updated"
	EventRoleChanged      AuditEvent = "role_changed"
	EventSignerAdded      AuditEvent = "signer_added"
	EventSignerRemoved    AuditEvent = "signer_removed"

	// Proposal events
	EventProposalCreated  AuditEvent = "proposal_created"
	EventProposalApproved AuditEvent = "proposal_approved"
	EventProposalRejected AuditEvent = "proposal_rejected"
	EventProposalExpired  AuditEvent = "proposal_expired"
	EventProposalExecuted AuditEvent = "proposal_executed"

	// Recurring payment events
	EventRecurringScheduled AuditEvent = "recurring_scheduled"
	EventRecurringPaid      AuditEvent = "recurring_paid"
	EventRecurringPaused    AuditEvent = "recurring_paused"
	EventRecurringResumed   AuditEvent = "recurring_resumed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVaultInitialized: CategoryCompliance,
	EventConfigUpdated:    CategoryCompliance,
	EventSignerAdded:      CategoryCompliance,
	EventSignerRemoved:    CategoryCompliance,
	EventProposalExecuted: CategoryCompliance,
	EventRecurringPaid:    CategoryCompliance,

	EventRoleChanged:        CategorySecurity,
	EventRecurringScheduled: CategorySecurity,
	EventProposalRejected:   CategorySecurity,

	EventProposalCreated:  CategoryOperations,
	EventProposalApproved: CategoryOperations,
	EventProposalExpired:  CategoryOperations,
	EventRecurringPaused:  CategoryOperations,
	EventRecurringResumed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
