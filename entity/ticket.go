package entity

import "time"

// TicketPhase is the lifecycle position of a ticket channel.
// Phase progression: awaiting-service → service-selected → order-captured
// → close-requested → closed. A closed ticket can be reopened (back to its
// pre-close phase) or deleted outright.
type TicketPhase string

const (
	PhaseAwaitingService TicketPhase = "awaiting-service"
	PhaseServiceSelected TicketPhase = "service-selected"
	PhaseOrderCaptured   TicketPhase = "order-captured"
	PhaseCloseRequested  TicketPhase = "close-requested"
	PhaseClosed          TicketPhase = "closed"
)

// OrderDetails is the structured result of the in-ticket order form.
// Reference is assigned on capture and quoted in the close summary so
// staff can match human-mediated payments to tickets.
type OrderDetails struct {
	Reference string `json:"reference" bson:"reference"`
	Package   string `json:"package" bson:"package" validate:"required"`
	Payment   string `json:"payment" bson:"payment" validate:"required"`
	Notes     string `json:"notes,omitempty" bson:"notes,omitempty" validate:"max=500"`
}

// TicketSession is the persisted state of one ticket channel, written at
// every phase transition. The channel's permission overwrites remain the
// source of truth for visibility; this record carries the logical phase.
type TicketSession struct {
	ChannelID string       `json:"channel_id" bson:"channel_id"`
	GuildID   string       `json:"guild_id" bson:"guild_id"`
	OwnerID   string       `json:"owner_id" bson:"owner_id"`
	OwnerName string       `json:"owner_name" bson:"owner_name"`
	Phase     TicketPhase  `json:"phase" bson:"phase"`
	PrevPhase TicketPhase  `json:"prev_phase,omitempty" bson:"prev_phase,omitempty"`
	Service   string       `json:"service,omitempty" bson:"service,omitempty"`
	Order     *OrderDetails `json:"order,omitempty" bson:"order,omitempty"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
	ClosedBy  string       `json:"closed_by,omitempty" bson:"closed_by,omitempty"`
}

// Active reports whether the ticket still occupies the owner's
// one-ticket-per-user slot.
func (t *TicketSession) Active() bool {
	return t.Phase != PhaseClosed
}
