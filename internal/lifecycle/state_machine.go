// Package lifecycle holds the ticket status transition table and applies
// transitions to tickets.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/campus-it/helpdesk-service/internal/domain"
	"github.com/campus-it/helpdesk-service/internal/policy"
)

var (
	// ErrInvalidTransition is returned for edges missing from the table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminal is returned for any attempt to leave CLOSED.
	ErrTerminal = fmt.Errorf("%w: ticket is closed", ErrInvalidTransition)
	// ErrAssigneeRequired is returned when starting work on an unassigned ticket.
	ErrAssigneeRequired = fmt.Errorf("%w: assignee required", ErrInvalidTransition)
	// ErrActorNotAllowed is returned when the edge exists but the actor may not take it.
	ErrActorNotAllowed = errors.New("actor not allowed to perform transition")
)

// Request describes a requested status change. AssigneeID is the assignee the
// ticket will have once the call's assignee change is applied.
type Request struct {
	Actor      domain.Actor
	Ticket     *domain.Ticket
	To         domain.TicketStatus
	AssigneeID *string
}

type guard func(req Request) error

var transitions = map[domain.TicketStatus]map[domain.TicketStatus]guard{
	domain.TicketStatusOpen: {
		domain.TicketStatusInProgress: requireAssignee,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusResolved: assigneeOrAdmin,
	},
	domain.TicketStatusResolved: {
		domain.TicketStatusClosed:     creatorOrPermanentCloser,
		domain.TicketStatusInProgress: creatorOrStaff,
	},
	domain.TicketStatusClosed: {},
}

// Next returns the statuses reachable from from, sorted.
func Next(from domain.TicketStatus) []domain.TicketStatus {
	edges := transitions[from]
	out := make([]domain.TicketStatus, 0, len(edges))
	for to := range edges {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckEdge validates the shape of a change without looking at the actor.
// A same-status request is a pure reassignment and is accepted when
// reassigning is true, except on closed tickets.
func CheckEdge(from, to domain.TicketStatus, reassigning bool) error {
	if from == domain.TicketStatusClosed {
		return ErrTerminal
	}
	if from == to {
		if reassigning {
			return nil
		}
		return ErrInvalidTransition
	}
	if _, ok := transitions[from][to]; !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Validate checks the edge and then its guard.
func Validate(req Request) error {
	if req.Ticket == nil {
		return ErrInvalidTransition
	}
	from := req.Ticket.Status
	reassigning := !sameAssignee(req.Ticket.AssigneeID, req.AssigneeID)
	if err := CheckEdge(from, req.To, reassigning); err != nil {
		return err
	}
	if from == req.To {
		return nil
	}
	return transitions[from][req.To](req)
}

// Apply mutates ticket to reflect an already validated request.
func Apply(ticket *domain.Ticket, to domain.TicketStatus, assigneeID *string, now time.Time) {
	if ticket.Status != to {
		switch to {
		case domain.TicketStatusResolved:
			ticket.ResolvedAt = &now
		case domain.TicketStatusInProgress:
			ticket.ResolvedAt = nil
		case domain.TicketStatusClosed:
			ticket.ClosedAt = &now
		}
	}
	ticket.Status = to
	ticket.AssigneeID = assigneeID
	ticket.UpdatedAt = now
	ticket.Version++
}

func requireAssignee(req Request) error {
	if req.AssigneeID == nil || *req.AssigneeID == "" {
		return ErrAssigneeRequired
	}
	return nil
}

// assigneeOrAdmin checks the assignee the ticket has before this call, so
// staff cannot claim a ticket and resolve it in one request.
func assigneeOrAdmin(req Request) error {
	if req.Actor.Role == domain.RoleAdmin {
		return nil
	}
	if req.Actor.IsAssigneeOf(req.Ticket) {
		return nil
	}
	return ErrActorNotAllowed
}

func creatorOrPermanentCloser(req Request) error {
	if req.Actor.IsCreatorOf(req.Ticket) {
		return nil
	}
	if policy.CanPerform(req.Actor, policy.ActionClosePermanently, req.Ticket) {
		return nil
	}
	return ErrActorNotAllowed
}

func creatorOrStaff(req Request) error {
	if req.Actor.IsCreatorOf(req.Ticket) || req.Actor.Role.IsStaff() {
		return nil
	}
	return ErrActorNotAllowed
}

func sameAssignee(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
