package domain

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsCreatorOf reports whether the actor opened the ticket.
func (a Actor) IsCreatorOf(ticket *Ticket) bool {
	return ticket != nil && a.ID != "" && ticket.CreatorID == a.ID
}

// IsAssigneeOf reports whether the actor is the ticket's current assignee.
func (a Actor) IsAssigneeOf(ticket *Ticket) bool {
	return ticket != nil && ticket.AssigneeID != nil && *ticket.AssigneeID == a.ID
}
