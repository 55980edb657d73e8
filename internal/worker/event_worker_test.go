package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/campus-it/helpdesk-service/internal/domain"
	"github.com/campus-it/helpdesk-service/internal/events"
	"github.com/campus-it/helpdesk-service/internal/service"
)

func TestStartEventWorkersRegistersActivityLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()

	StartEventWorkers(dispatcher, service.NewActivityLogger(dispatcher, zap.New(core)), nil)

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketStatusChanged,
		TicketID: "t-1",
		Actor:    events.Actor{ID: "s-1", Role: domain.RoleITStaff},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusOpen,
			NewStatus: domain.TicketStatusInProgress,
		},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("TicketStatusChanged").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "IN_PROGRESS", entries[0].ContextMap()["new_status"])
}

func TestStartEventWorkersNilDispatcher(t *testing.T) {
	assert.NotPanics(t, func() { StartEventWorkers(nil, nil, nil) })
}
