// Package policy decides which actor may perform which action on a ticket.
// Every function here is pure: no I/O, no clocks, no globals.
package policy

import "github.com/campus-it/helpdesk-service/internal/domain"

// Action names an operation subject to role checks.
type Action string

const (
	ActionCreateTicket        Action = "create_ticket"
	ActionViewTicket          Action = "view_ticket"
	ActionViewInternalComment Action = "view_internal_comment"
	ActionEditTicket          Action = "edit_ticket"
	ActionChangeStatus        Action = "change_status"
	ActionRespondToResolution Action = "respond_to_resolution"
	ActionAssignTicket        Action = "assign_ticket"
	ActionClosePermanently    Action = "close_permanently"
)

// Actions lists every action the policy knows about.
var Actions = []Action{
	ActionCreateTicket,
	ActionViewTicket,
	ActionViewInternalComment,
	ActionEditTicket,
	ActionChangeStatus,
	ActionRespondToResolution,
	ActionAssignTicket,
	ActionClosePermanently,
}

// CanPerform reports whether actor may perform action on ticket. ticket may be
// nil for actions that are not scoped to a ticket. Unknown roles and actions
// are denied.
func CanPerform(actor domain.Actor, action Action, ticket *domain.Ticket) bool {
	switch actor.Role {
	case domain.RoleTeacher:
		return teacherCan(actor, action, ticket)
	case domain.RoleITStaff:
		return staffCan(action)
	case domain.RoleAdmin:
		return adminCan(action)
	default:
		return false
	}
}

func teacherCan(actor domain.Actor, action Action, ticket *domain.Ticket) bool {
	switch action {
	case ActionCreateTicket:
		return true
	case ActionViewTicket:
		return actor.IsCreatorOf(ticket)
	case ActionEditTicket:
		return actor.IsCreatorOf(ticket) && ticket.Status == domain.TicketStatusOpen
	case ActionRespondToResolution:
		return actor.IsCreatorOf(ticket) && ticket.Status == domain.TicketStatusResolved
	case ActionViewInternalComment, ActionChangeStatus, ActionAssignTicket, ActionClosePermanently:
		return false
	default:
		return false
	}
}

func staffCan(action Action) bool {
	switch action {
	case ActionCreateTicket, ActionViewTicket, ActionViewInternalComment,
		ActionChangeStatus, ActionRespondToResolution, ActionAssignTicket:
		return true
	case ActionEditTicket, ActionClosePermanently:
		return false
	default:
		return false
	}
}

func adminCan(action Action) bool {
	switch action {
	case ActionCreateTicket, ActionViewTicket, ActionViewInternalComment, ActionEditTicket,
		ActionChangeStatus, ActionRespondToResolution, ActionAssignTicket, ActionClosePermanently:
		return true
	default:
		return false
	}
}

// OwnTicketsOnly reports whether ticket listings for actor must be limited to
// tickets the actor created.
func OwnTicketsOnly(actor domain.Actor) bool {
	switch actor.Role {
	case domain.RoleITStaff, domain.RoleAdmin:
		return false
	default:
		return true
	}
}
