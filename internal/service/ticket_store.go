package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-it/helpdesk-service/internal/domain"
	"github.com/campus-it/helpdesk-service/internal/events"
	"github.com/campus-it/helpdesk-service/internal/lifecycle"
	"github.com/campus-it/helpdesk-service/internal/observability"
	"github.com/campus-it/helpdesk-service/internal/policy"
	"github.com/campus-it/helpdesk-service/internal/repository"
	apperrors "github.com/campus-it/helpdesk-service/pkg/util"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
	maxCategoryLength    = 50
	maxCommentLength     = 10000
	commentPreviewLength = 120
)

// UserDirectory resolves user records. A missing user must be reported with
// a NOT_FOUND domain error or repository.ErrNotFound.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// TicketStore owns tickets, comments and history. Every mutating call runs
// the role policy and the state machine, and writes conditionally on the
// ticket version.
type TicketStore struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	users      UserDirectory
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketStoreDependencies bundles collaborators for the store.
type TicketStoreDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Users       UserDirectory
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       func() time.Time
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title       string
	Description string
	Category    string
	Priority    domain.TicketPriority
}

// TicketListFilter describes listing filters. Teachers are always limited to
// their own tickets regardless of the filter.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []string
	AssigneeID *string
	SearchTerm *string
	Limit      int
	Offset     int
}

// UpdateStatusInput requests a status change, optionally assigning in the
// same write. A nil AssigneeID leaves the assignee unchanged. ExpectedVersion
// zero means the version read at the start of the call.
type UpdateStatusInput struct {
	Status          domain.TicketStatus
	AssigneeID      *string
	ExpectedVersion int64
}

// EditFieldsInput carries the descriptive fields to change. Nil fields are
// left untouched; an empty Category resets it to the default.
type EditFieldsInput struct {
	Title           *string
	Description     *string
	Category        *string
	Priority        *domain.TicketPriority
	ExpectedVersion int64
}

// AddCommentInput describes a new comment.
type AddCommentInput struct {
	Content    string
	IsInternal bool
}

// NewTicketStore constructs the store.
func NewTicketStore(deps TicketStoreDependencies) *TicketStore {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketStore{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		users:      deps.Users,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// CreateTicket opens a new ticket owned by actor.
func (s *TicketStore) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if !policy.CanPerform(actor, policy.ActionCreateTicket, nil) {
		return nil, apperrors.NewForbidden("not allowed to create tickets")
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	category := normalizeCategory(input.Category)
	if err := validateTicketFields(title, description, category, priority); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Category:    category,
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		CreatorID:   actor.ID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, actor, ticket, events.EventTicketCreated, events.TicketCreatedPayload{
		CreatorID: ticket.CreatorID,
		Priority:  ticket.Priority,
		Category:  ticket.Category,
		Title:     ticket.Title,
	})
	return ticket, nil
}

// GetTicket returns a ticket the actor may view.
func (s *TicketStore) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.loadVisible(ctx, actor, ticketID)
}

// ListTickets returns tickets visible to actor, most recently updated first.
func (s *TicketStore) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": status})
		}
	}
	for _, priority := range filter.Priorities {
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": priority})
		}
	}

	repoFilter := repository.TicketFilter{
		AssigneeID: filter.AssigneeID,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Categories: filter.Categories,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if policy.OwnTicketsOnly(actor) {
		creator := actor.ID
		repoFilter.CreatorID = &creator
	}

	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Stats summarizes the tickets actor may list. Teachers only count their own.
func (s *TicketStore) Stats(ctx context.Context, actor domain.Actor) (*domain.TicketStats, error) {
	if actor.ID == "" || !actor.Role.Valid() {
		return nil, apperrors.NewForbidden("not allowed to view ticket statistics")
	}

	var filter repository.TicketFilter
	if policy.OwnTicketsOnly(actor) {
		creator := actor.ID
		filter.CreatorID = &creator
	}
	counts, err := s.tickets.Count(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	stats := &domain.TicketStats{ByStatus: make(map[domain.TicketStatus]int64)}
	for _, status := range domain.AllStatuses() {
		stats.ByStatus[status] = 0
	}
	for _, c := range counts {
		stats.Total += c.Count
		stats.ByStatus[c.Status] += c.Count
		switch c.Status {
		case domain.TicketStatusOpen, domain.TicketStatusInProgress:
			stats.Active += c.Count
		case domain.TicketStatusResolved:
			stats.Resolved += c.Count
		}
		if c.Priority == domain.TicketPriorityUrgent && c.Status != domain.TicketStatusClosed {
			stats.Urgent += c.Count
		}
	}
	return stats, nil
}

// UpdateTicketStatus moves a ticket along the lifecycle, optionally changing
// the assignee in the same write.
func (s *TicketStore) UpdateTicketStatus(ctx context.Context, actor domain.Actor, ticketID string, input UpdateStatusInput) (*domain.Ticket, error) {
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": input.Status})
	}
	if input.AssigneeID != nil && strings.TrimSpace(*input.AssigneeID) == "" {
		return nil, apperrors.NewValidationError("assignee_id must not be empty", nil)
	}

	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	expected, err := s.checkVersion(ticket, input.ExpectedVersion, "update_status")
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, ticket, expected, input.Status, input.AssigneeID)
}

// AssignTicket changes the assignee without changing status. Assigning the
// current assignee again returns the ticket unchanged.
func (s *TicketStore) AssignTicket(ctx context.Context, actor domain.Actor, ticketID, assigneeID string, expectedVersion int64) (*domain.Ticket, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, apperrors.NewValidationError("assignee_id is required", nil)
	}

	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	expected, err := s.checkVersion(ticket, expectedVersion, "assign")
	if err != nil {
		return nil, err
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == assigneeID && ticket.Status != domain.TicketStatusClosed {
		if !policy.CanPerform(actor, policy.ActionAssignTicket, ticket) {
			return nil, apperrors.NewForbidden("not allowed to assign tickets")
		}
		return ticket, nil
	}
	return s.transition(ctx, actor, ticket, expected, ticket.Status, &assigneeID)
}

func (s *TicketStore) transition(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, expected int64, to domain.TicketStatus, requestedAssignee *string) (*domain.Ticket, error) {
	from := ticket.Status
	newAssignee := ticket.AssigneeID
	reassigning := false
	if requestedAssignee != nil {
		newAssignee = requestedAssignee
		reassigning = ticket.AssigneeID == nil || *ticket.AssigneeID != *requestedAssignee
	}

	if err := lifecycle.CheckEdge(from, to, reassigning); err != nil {
		return nil, apperrors.NewInvalidTransition(string(from), string(to))
	}
	if from != to &&
		!policy.CanPerform(actor, policy.ActionChangeStatus, ticket) &&
		!policy.CanPerform(actor, policy.ActionRespondToResolution, ticket) {
		return nil, apperrors.NewForbidden("not allowed to change ticket status")
	}
	if reassigning {
		if !policy.CanPerform(actor, policy.ActionAssignTicket, ticket) {
			return nil, apperrors.NewForbidden("not allowed to assign tickets")
		}
		if err := s.checkAssignee(ctx, *newAssignee); err != nil {
			return nil, err
		}
	}

	err := lifecycle.Validate(lifecycle.Request{Actor: actor, Ticket: ticket, To: to, AssigneeID: newAssignee})
	switch {
	case errors.Is(err, lifecycle.ErrActorNotAllowed):
		return nil, apperrors.NewForbidden("not allowed to perform this transition")
	case errors.Is(err, lifecycle.ErrAssigneeRequired):
		return nil, apperrors.NewDomainError(apperrors.CodeInvalidTransition,
			"ticket must have an assignee before work starts", http.StatusUnprocessableEntity,
			map[string]any{"from": from, "to": to})
	case err != nil:
		return nil, apperrors.NewInvalidTransition(string(from), string(to))
	}

	updated := ticket.Clone()
	lifecycle.Apply(updated, to, newAssignee, s.now())

	var entries []domain.TicketHistory
	if from != to {
		entries = append(entries, domain.TicketHistory{
			TicketID:   ticket.ID,
			ActorID:    actor.ID,
			ChangeType: domain.ChangeTypeStatus,
			OldValue:   map[string]any{"status": from},
			NewValue:   map[string]any{"status": to},
		})
	}
	if reassigning {
		entries = append(entries, domain.TicketHistory{
			TicketID:   ticket.ID,
			ActorID:    actor.ID,
			ChangeType: domain.ChangeTypeAssignee,
			OldValue:   map[string]any{"assignee_id": ticket.AssigneeID},
			NewValue:   map[string]any{"assignee_id": newAssignee},
		})
	}

	if err := s.tickets.UpdateIfVersion(ctx, updated, expected, entries); err != nil {
		return nil, s.writeError(err, ticket.ID, expected, "update_status")
	}

	if from != to {
		s.metrics.RecordTransition(string(from), string(to))
		s.publishEvent(ctx, actor, updated, events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
			OldStatus: from,
			NewStatus: to,
		})
	}
	if reassigning {
		s.publishEvent(ctx, actor, updated, events.EventTicketAssigned, events.TicketAssignedPayload{
			OldAssigneeID: ticket.AssigneeID,
			NewAssigneeID: newAssignee,
		})
	}
	return updated, nil
}

// EditTicketFields changes title, description or priority.
func (s *TicketStore) EditTicketFields(ctx context.Context, actor domain.Actor, ticketID string, input EditFieldsInput) (*domain.Ticket, error) {
	if input.Title == nil && input.Description == nil && input.Category == nil && input.Priority == nil {
		return nil, apperrors.NewValidationError("at least one field must be provided", nil)
	}

	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	expected, err := s.checkVersion(ticket, input.ExpectedVersion, "edit")
	if err != nil {
		return nil, err
	}
	if !policy.CanPerform(actor, policy.ActionEditTicket, ticket) {
		return nil, apperrors.NewForbidden("not allowed to edit this ticket")
	}

	updated := ticket.Clone()
	if input.Title != nil {
		updated.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		updated.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		updated.Category = normalizeCategory(*input.Category)
	}
	if input.Priority != nil {
		updated.Priority = *input.Priority
	}
	if err := validateTicketFields(updated.Title, updated.Description, updated.Category, updated.Priority); err != nil {
		return nil, err
	}

	oldValue := map[string]any{}
	newValue := map[string]any{}
	var fields []string
	if updated.Title != ticket.Title {
		oldValue["title"], newValue["title"] = ticket.Title, updated.Title
		fields = append(fields, "title")
	}
	if updated.Description != ticket.Description {
		oldValue["description"], newValue["description"] = ticket.Description, updated.Description
		fields = append(fields, "description")
	}
	if updated.Category != ticket.Category {
		oldValue["category"], newValue["category"] = ticket.Category, updated.Category
		fields = append(fields, "category")
	}
	if updated.Priority != ticket.Priority {
		oldValue["priority"], newValue["priority"] = ticket.Priority, updated.Priority
		fields = append(fields, "priority")
	}
	if len(fields) == 0 {
		return ticket, nil
	}

	updated.UpdatedAt = s.now()
	updated.Version++
	entries := []domain.TicketHistory{{
		TicketID:   ticket.ID,
		ActorID:    actor.ID,
		ChangeType: domain.ChangeTypeFields,
		OldValue:   oldValue,
		NewValue:   newValue,
	}}
	if err := s.tickets.UpdateIfVersion(ctx, updated, expected, entries); err != nil {
		return nil, s.writeError(err, ticket.ID, expected, "edit")
	}

	s.publishEvent(ctx, actor, updated, events.EventTicketUpdated, events.TicketUpdatedPayload{
		Fields:   fields,
		Priority: updated.Priority,
	})
	return updated, nil
}

// AddComment appends a comment. Comments do not change the ticket version.
func (s *TicketStore) AddComment(ctx context.Context, actor domain.Actor, ticketID string, input AddCommentInput) (*domain.Comment, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, apperrors.NewValidationError("content too long", map[string]any{"max": maxCommentLength})
	}

	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if input.IsInternal && !policy.CanPerform(actor, policy.ActionViewInternalComment, ticket) {
		return nil, apperrors.NewForbidden("not allowed to post internal comments")
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		Content:    content,
		IsInternal: input.IsInternal,
		CreatedAt:  s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	payload := events.TicketCommentAddedPayload{
		CommentID:  comment.ID,
		AuthorID:   comment.AuthorID,
		IsInternal: comment.IsInternal,
	}
	if !comment.IsInternal {
		payload.BodyPreview = stringPreview(comment.Content, commentPreviewLength)
	}
	s.publishEvent(ctx, actor, ticket, events.EventTicketCommentAdded, payload)
	return comment, nil
}

// ListComments returns the comments actor may see, oldest first.
func (s *TicketStore) ListComments(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if policy.CanPerform(actor, policy.ActionViewInternalComment, ticket) {
		return comments, nil
	}

	visible := make([]domain.Comment, 0, len(comments))
	for _, comment := range comments {
		if comment.IsInternal {
			continue
		}
		visible = append(visible, comment)
	}
	return visible, nil
}

// ListHistory returns the audit trail. Actors without internal visibility
// only see status and assignee changes.
func (s *TicketStore) ListHistory(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.TicketHistory, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if policy.CanPerform(actor, policy.ActionViewInternalComment, ticket) {
		return history, nil
	}

	allowed := []domain.TicketHistory{}
	for _, entry := range history {
		if entry.ChangeType == domain.ChangeTypeStatus || entry.ChangeType == domain.ChangeTypeAssignee {
			allowed = append(allowed, entry)
		}
	}
	return allowed, nil
}

func (s *TicketStore) loadVisible(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !policy.CanPerform(actor, policy.ActionViewTicket, ticket) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}
	return ticket, nil
}

func (s *TicketStore) checkVersion(ticket *domain.Ticket, expected int64, operation string) (int64, error) {
	if expected == 0 {
		return ticket.Version, nil
	}
	if expected != ticket.Version {
		s.metrics.RecordConflict(operation)
		return 0, versionConflict(ticket.ID, expected, ticket.Version)
	}
	return expected, nil
}

func (s *TicketStore) checkAssignee(ctx context.Context, assigneeID string) error {
	user, err := s.users.GetUser(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || apperrors.HasCode(err, apperrors.CodeNotFound) {
			return apperrors.NewNotFound("assignee", map[string]any{"assignee_id": assigneeID})
		}
		return apperrors.NewInternalError(err)
	}
	if !user.Role.IsStaff() {
		return apperrors.NewValidationError("assignee must be IT staff or admin",
			map[string]any{"assignee_id": assigneeID, "role": user.Role})
	}
	if !user.Active {
		return apperrors.NewValidationError("assignee is inactive", map[string]any{"assignee_id": assigneeID})
	}
	return nil
}

func (s *TicketStore) writeError(err error, ticketID string, expected int64, operation string) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		s.metrics.RecordConflict(operation)
		return versionConflict(ticketID, expected, 0)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	default:
		return apperrors.NewInternalError(err)
	}
}

func versionConflict(ticketID string, expected, current int64) error {
	details := map[string]any{"ticket_id": ticketID, "expected_version": expected}
	if current > 0 {
		details["current_version"] = current
	}
	return apperrors.NewConflict("ticket was modified concurrently; reload and retry", details)
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.DefaultCategory
	}
	return category
}

func validateTicketFields(title, description, category string, priority domain.TicketPriority) error {
	switch {
	case title == "":
		return apperrors.NewValidationError("title is required", nil)
	case utf8.RuneCountInString(title) > maxTitleLength:
		return apperrors.NewValidationError("title too long", map[string]any{"max": maxTitleLength})
	case description == "":
		return apperrors.NewValidationError("description is required", nil)
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		return apperrors.NewValidationError("description too long", map[string]any{"max": maxDescriptionLength})
	case utf8.RuneCountInString(category) > maxCategoryLength:
		return apperrors.NewValidationError("category too long", map[string]any{"max": maxCategoryLength})
	case !priority.Valid():
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	return nil
}

func (s *TicketStore) publishEvent(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, eventType events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Version:   ticket.Version,
		Actor:     events.Actor{ID: actor.ID, Role: actor.Role},
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("event_type", string(eventType)),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
