package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campus-it/helpdesk-service/internal/events"
)

// ActivityLogger writes an audit log line for every ticket event. It never
// logs comment bodies.
type ActivityLogger struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewActivityLogger creates the service.
func NewActivityLogger(dispatcher events.Dispatcher, logger *zap.Logger) *ActivityLogger {
	return &ActivityLogger{dispatcher: dispatcher, logger: logger.Named("activity")}
}

// RegisterHandlers subscribes to events.
func (a *ActivityLogger) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handleTicketStatusChanged)
	a.dispatcher.Subscribe(events.EventTicketAssigned, a.handleTicketAssigned)
	a.dispatcher.Subscribe(events.EventTicketUpdated, a.handleTicketUpdated)
	a.dispatcher.Subscribe(events.EventTicketCommentAdded, a.handleTicketCommentAdded)
}

func (a *ActivityLogger) handleTicketCreated(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.TicketCreatedPayload); ok {
		fields = append(fields, zap.String("priority", string(payload.Priority)))
	}
	a.logger.Info("TicketCreated", fields...)
	return nil
}

func (a *ActivityLogger) handleTicketStatusChanged(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.TicketStatusChangedPayload); ok {
		fields = append(fields,
			zap.String("old_status", string(payload.OldStatus)),
			zap.String("new_status", string(payload.NewStatus)))
	}
	a.logger.Info("TicketStatusChanged", fields...)
	return nil
}

func (a *ActivityLogger) handleTicketAssigned(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.TicketAssignedPayload); ok {
		fields = append(fields,
			zap.Stringp("old_assignee_id", payload.OldAssigneeID),
			zap.Stringp("new_assignee_id", payload.NewAssigneeID))
	}
	a.logger.Info("TicketAssigned", fields...)
	return nil
}

func (a *ActivityLogger) handleTicketUpdated(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.TicketUpdatedPayload); ok {
		fields = append(fields, zap.Strings("fields", payload.Fields))
	}
	a.logger.Info("TicketUpdated", fields...)
	return nil
}

func (a *ActivityLogger) handleTicketCommentAdded(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.TicketCommentAddedPayload); ok {
		fields = append(fields,
			zap.String("comment_id", payload.CommentID),
			zap.Bool("internal", payload.IsInternal))
	}
	a.logger.Info("TicketCommentAdded", fields...)
	return nil
}

func (a *ActivityLogger) baseFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.Int64("version", event.Version),
		zap.String("actor_id", event.Actor.ID),
		zap.String("actor_role", string(event.Actor.Role)),
	}
}
