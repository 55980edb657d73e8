package dto

import (
	"time"

	"github.com/campus-it/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,max=200"`
	Description string                `json:"description" validate:"required,max=10000"`
	Category    string                `json:"category" validate:"omitempty,max=50"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
}

// UpdateTicketRequest edits descriptive fields. Omitted fields are unchanged.
type UpdateTicketRequest struct {
	Title           *string                `json:"title" validate:"omitempty,max=200"`
	Description     *string                `json:"description" validate:"omitempty,max=10000"`
	Category        *string                `json:"category" validate:"omitempty,max=50"`
	Priority        *domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	ExpectedVersion int64                  `json:"expected_version" validate:"gte=0"`
}

// UpdateStatusRequest moves a ticket, optionally assigning it in the same call.
type UpdateStatusRequest struct {
	Status          domain.TicketStatus `json:"status" validate:"required,ticket_status"`
	AssigneeID      *string             `json:"assignee_id"`
	ExpectedVersion int64               `json:"expected_version" validate:"gte=0"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID      string `json:"assignee_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content" validate:"required,max=10000"`
	IsInternal bool   `json:"is_internal"`
}

// TicketResponse is the public shape of a ticket.
type TicketResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     string                `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	CreatorID    string                `json:"creator_id"`
	AssigneeID   *string               `json:"assignee_id"`
	Version      int64                 `json:"version"`
	NextStatuses []domain.TicketStatus `json:"next_statuses"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ResolvedAt   *time.Time            `json:"resolved_at"`
	ClosedAt     *time.Time            `json:"closed_at"`
}

// TicketStatsResponse summarizes the tickets visible to the caller.
type TicketStatsResponse struct {
	Total    int64                         `json:"total"`
	Active   int64                         `json:"active"`
	Resolved int64                         `json:"resolved"`
	Urgent   int64                         `json:"urgent"`
	ByStatus map[domain.TicketStatus]int64 `json:"by_status"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ActorID    string                  `json:"actor_id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
