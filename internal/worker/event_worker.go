package worker

import (
	"github.com/campus-it/helpdesk-service/internal/events"
	"github.com/campus-it/helpdesk-service/internal/service"
)

// StartEventWorkers registers the in-process event consumers: the activity
// log and, when configured, the RabbitMQ forwarder.
func StartEventWorkers(dispatcher events.Dispatcher, activity *service.ActivityLogger, forwarder *events.AMQPPublisher) {
	if dispatcher == nil {
		return
	}
	if activity != nil {
		activity.RegisterHandlers()
	}
	if forwarder != nil {
		events.SubscribeAll(dispatcher, forwarder.Handle)
	}
}
