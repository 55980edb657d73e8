package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	default:
		return false
	}
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	default:
		return false
	}
}

// DefaultCategory is assigned to tickets created without a category.
const DefaultCategory = "General"

// Ticket is the aggregate for support requests.
//
// Version starts at 1 and increases by one on every mutation; conditional
// writes compare against it.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Category    string
	Priority    TicketPriority
	Status      TicketStatus
	CreatorID   string
	AssigneeID  *string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
	ClosedAt    *time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		cp.AssigneeID = &id
	}
	if t.ResolvedAt != nil {
		ts := *t.ResolvedAt
		cp.ResolvedAt = &ts
	}
	if t.ClosedAt != nil {
		ts := *t.ClosedAt
		cp.ClosedAt = &ts
	}
	return &cp
}

// TicketStats summarises a set of tickets. Active counts OPEN and
// IN_PROGRESS; Urgent counts URGENT tickets that are not closed. ByStatus
// has an entry for every status, zero included.
type TicketStats struct {
	Total    int64
	Active   int64
	Resolved int64
	Urgent   int64
	ByStatus map[TicketStatus]int64
}

// AllStatuses lists statuses in lifecycle order.
func AllStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed}
}
