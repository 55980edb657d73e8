package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-it/helpdesk-service/internal/auth"
	"github.com/campus-it/helpdesk-service/internal/domain"
	"github.com/campus-it/helpdesk-service/internal/events"
	"github.com/campus-it/helpdesk-service/internal/observability"
	"github.com/campus-it/helpdesk-service/internal/repository"
	apperrors "github.com/campus-it/helpdesk-service/pkg/util"
)

type storeFixture struct {
	store   *TicketStore
	tickets *repository.MemoryTicketRepository
	users   *repository.MemoryUserRepository

	mu        sync.Mutex
	published []events.Event

	teacher domain.Actor
	other   domain.Actor
	staff   domain.Actor
	staff2  domain.Actor
	admin   domain.Actor
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	f := &storeFixture{
		tickets: repository.NewMemoryTicketRepository(),
		users:   repository.NewMemoryUserRepository(),
	}

	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e)
		return nil
	})

	identity := NewIdentityService(IdentityDependencies{
		UserRepo:     f.users,
		TokenManager: auth.NewTokenManager("secret", "helpdesk", time.Hour),
		BcryptCost:   4,
	})
	f.store = NewTicketStore(TicketStoreDependencies{
		TicketRepo:  f.tickets,
		CommentRepo: repository.NewMemoryCommentRepository(),
		HistoryRepo: f.tickets,
		Users:       identity,
		Dispatcher:  dispatcher,
		Metrics:     observability.NewMetrics(),
		Logger:      zap.NewNop(),
	})

	f.teacher = f.addUser(t, "teacher@school.test", domain.RoleTeacher)
	f.other = f.addUser(t, "other@school.test", domain.RoleTeacher)
	f.staff = f.addUser(t, "staff@school.test", domain.RoleITStaff)
	f.staff2 = f.addUser(t, "staff2@school.test", domain.RoleITStaff)
	f.admin = f.addUser(t, "admin@school.test", domain.RoleAdmin)
	return f
}

func (f *storeFixture) addUser(t *testing.T, email string, role domain.Role) domain.Actor {
	t.Helper()
	user := &domain.User{Email: email, FullName: email, Role: role, Active: true}
	require.NoError(t, f.users.Create(context.Background(), user))
	return domain.Actor{ID: user.ID, Role: role}
}

func (f *storeFixture) create(t *testing.T, actor domain.Actor) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.CreateTicket(context.Background(), actor, CreateTicketInput{
		Title:       "Printer not working",
		Description: "The staff room printer shows a paper jam",
	})
	require.NoError(t, err)
	return ticket
}

func (f *storeFixture) eventsOfType(eventType events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *storeFixture) startWork(t *testing.T, ticketID string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.UpdateTicketStatus(context.Background(), f.staff, ticketID, UpdateStatusInput{
		Status:     domain.TicketStatusInProgress,
		AssigneeID: ptr(f.staff.ID),
	})
	require.NoError(t, err)
	return ticket
}

func (f *storeFixture) resolve(t *testing.T, ticketID string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.UpdateTicketStatus(context.Background(), f.staff, ticketID, UpdateStatusInput{
		Status: domain.TicketStatusResolved,
	})
	require.NoError(t, err)
	return ticket
}

func ptr[T any](v T) *T { return &v }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "want %s, got %v", code, err)
}

func TestCreateTicket(t *testing.T) {
	f := newStoreFixture(t)

	ticket := f.create(t, f.teacher)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.AssigneeID)
	assert.Equal(t, int64(1), ticket.Version)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, f.teacher.ID, ticket.CreatorID)

	created := f.eventsOfType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, ticket.ID, created[0].TicketID)
	assert.Equal(t, f.teacher.ID, created[0].Actor.ID)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateTicket(ctx, f.teacher, CreateTicketInput{Title: "   ", Description: "x"})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.store.CreateTicket(ctx, f.teacher, CreateTicketInput{Title: "x", Description: ""})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.store.CreateTicket(ctx, f.teacher, CreateTicketInput{Title: "x", Description: "y", Priority: "CRITICAL"})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.store.CreateTicket(ctx, domain.Actor{ID: "guest", Role: "GUEST"}, CreateTicketInput{Title: "x", Description: "y"})
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestPrinterScenario(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	ticket := f.create(t, f.teacher)

	ticket = f.startWork(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, f.staff.ID, *ticket.AssigneeID)
	assert.Equal(t, int64(2), ticket.Version)

	_, err := f.store.UpdateTicketStatus(ctx, f.teacher, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusResolved})
	assertCode(t, err, apperrors.CodeForbidden)

	ticket = f.resolve(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.NotNil(t, ticket.ResolvedAt)

	ticket, err = f.store.UpdateTicketStatus(ctx, f.teacher, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
	assert.NotNil(t, ticket.ClosedAt)

	for _, actor := range []domain.Actor{f.teacher, f.staff, f.admin} {
		_, err = f.store.UpdateTicketStatus(ctx, actor, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusInProgress})
		assertCode(t, err, apperrors.CodeInvalidTransition)
	}

	history, err := f.store.ListHistory(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)
	assert.Equal(t, domain.ChangeTypeAssignee, history[1].ChangeType)

	assert.Len(t, f.eventsOfType(events.EventTicketStatusChanged), 3)
	assert.Len(t, f.eventsOfType(events.EventTicketAssigned), 1)
}

func TestStartWorkRequiresAssignee(t *testing.T) {
	f := newStoreFixture(t)
	ticket := f.create(t, f.teacher)

	_, err := f.store.UpdateTicketStatus(context.Background(), f.staff, ticket.ID, UpdateStatusInput{
		Status: domain.TicketStatusInProgress,
	})
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestSkippingStatesIsInvalid(t *testing.T) {
	f := newStoreFixture(t)
	ticket := f.create(t, f.teacher)

	_, err := f.store.UpdateTicketStatus(context.Background(), f.admin, ticket.ID, UpdateStatusInput{
		Status: domain.TicketStatusResolved,
	})
	assertCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.store.UpdateTicketStatus(context.Background(), f.admin, ticket.ID, UpdateStatusInput{
		Status: "DONE",
	})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestTeacherCannotChangeStatusOrAssign(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	_, err := f.store.UpdateTicketStatus(ctx, f.teacher, ticket.ID, UpdateStatusInput{
		Status:     domain.TicketStatusInProgress,
		AssigneeID: ptr(f.staff.ID),
	})
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = f.store.AssignTicket(ctx, f.teacher, ticket.ID, f.staff.ID, 0)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestOnlyAssigneeOrAdminResolves(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.startWork(t, f.create(t, f.teacher).ID)

	_, err := f.store.UpdateTicketStatus(ctx, f.staff2, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusResolved})
	assertCode(t, err, apperrors.CodeForbidden)

	resolved, err := f.store.UpdateTicketStatus(ctx, f.admin, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusResolved})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
}

func TestReassignAndResolveInOneCall(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.startWork(t, f.create(t, f.teacher).ID)

	_, err := f.store.UpdateTicketStatus(ctx, f.staff2, ticket.ID, UpdateStatusInput{
		Status:     domain.TicketStatusResolved,
		AssigneeID: ptr(f.staff2.ID),
	})
	assertCode(t, err, apperrors.CodeForbidden)

	unchanged, err := f.store.GetTicket(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, unchanged.Status)
	assert.Equal(t, f.staff.ID, *unchanged.AssigneeID)
	assert.Equal(t, ticket.Version, unchanged.Version)

	resolved, err := f.store.UpdateTicketStatus(ctx, f.admin, ticket.ID, UpdateStatusInput{
		Status:     domain.TicketStatusResolved,
		AssigneeID: ptr(f.staff2.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, f.staff2.ID, *resolved.AssigneeID)
	assert.Equal(t, ticket.Version+1, resolved.Version)
}

func TestCloseAndReopenRules(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.resolve(t, f.startWork(t, f.create(t, f.teacher).ID).ID)

	_, err := f.store.UpdateTicketStatus(ctx, f.staff, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusClosed})
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = f.store.UpdateTicketStatus(ctx, f.other, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusInProgress})
	assertCode(t, err, apperrors.CodeForbidden)

	reopened, err := f.store.UpdateTicketStatus(ctx, f.teacher, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)

	resolved := f.resolve(t, ticket.ID)
	closed, err := f.store.UpdateTicketStatus(ctx, f.admin, resolved.ID, UpdateStatusInput{Status: domain.TicketStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
}

func TestTeacherVisibility(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	mine := f.create(t, f.teacher)
	theirs := f.create(t, f.other)

	_, err := f.store.GetTicket(ctx, f.teacher, theirs.ID)
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.store.ListComments(ctx, f.teacher, theirs.ID)
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.store.AddComment(ctx, f.teacher, theirs.ID, AddCommentInput{Content: "me too"})
	assertCode(t, err, apperrors.CodeForbidden)

	listed, err := f.store.ListTickets(ctx, f.teacher, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, mine.ID, listed[0].ID)

	all, err := f.store.ListTickets(ctx, f.staff, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.store.GetTicket(ctx, f.staff, "missing")
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestListTicketsFilters(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	f.startWork(t, f.create(t, f.teacher).ID)
	f.create(t, f.other)

	inProgress, err := f.store.ListTickets(ctx, f.admin, TicketListFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusInProgress},
	})
	require.NoError(t, err)
	assert.Len(t, inProgress, 1)

	assigned, err := f.store.ListTickets(ctx, f.admin, TicketListFilter{AssigneeID: ptr(f.staff.ID)})
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	_, err = f.store.ListTickets(ctx, f.admin, TicketListFilter{Statuses: []domain.TicketStatus{"PENDING"}})
	assertCode(t, err, apperrors.CodeValidation)
	_, err = f.store.ListTickets(ctx, f.admin, TicketListFilter{Priorities: []domain.TicketPriority{"P1"}})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestInternalCommentScenario(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	_, err := f.store.AddComment(ctx, f.teacher, ticket.ID, AddCommentInput{Content: "Still jammed"})
	require.NoError(t, err)
	internal, err := f.store.AddComment(ctx, f.staff, ticket.ID, AddCommentInput{Content: "Needs new fuser", IsInternal: true})
	require.NoError(t, err)
	assert.True(t, internal.IsInternal)

	teacherView, err := f.store.ListComments(ctx, f.teacher, ticket.ID)
	require.NoError(t, err)
	require.Len(t, teacherView, 1)
	assert.False(t, teacherView[0].IsInternal)

	for _, actor := range []domain.Actor{f.staff, f.admin} {
		view, err := f.store.ListComments(ctx, actor, ticket.ID)
		require.NoError(t, err)
		assert.Len(t, view, 2)
	}

	_, err = f.store.AddComment(ctx, f.teacher, ticket.ID, AddCommentInput{Content: "sneaky", IsInternal: true})
	assertCode(t, err, apperrors.CodeForbidden)

	added := f.eventsOfType(events.EventTicketCommentAdded)
	require.Len(t, added, 2)
	payload := added[1].Payload.(events.TicketCommentAddedPayload)
	assert.True(t, payload.IsInternal)
	assert.Empty(t, payload.BodyPreview)
}

func TestCommentsDoNotBumpVersion(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	_, err := f.store.AddComment(ctx, f.staff, ticket.ID, AddCommentInput{Content: "On my way"})
	require.NoError(t, err)
	_, err = f.store.AddComment(ctx, f.staff, ticket.ID, AddCommentInput{Content: "   "})
	assertCode(t, err, apperrors.CodeValidation)

	reloaded, err := f.store.GetTicket(ctx, f.teacher, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.Version)
}

func TestAssigningNonStaffFailsAndLeavesTicketUnchanged(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	_, err := f.store.UpdateTicketStatus(ctx, f.staff, ticket.ID, UpdateStatusInput{
		Status:     domain.TicketStatusInProgress,
		AssigneeID: ptr(f.other.ID),
	})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.store.UpdateTicketStatus(ctx, f.staff, ticket.ID, UpdateStatusInput{
		Status:     domain.TicketStatusInProgress,
		AssigneeID: ptr("no-such-user"),
	})
	assertCode(t, err, apperrors.CodeNotFound)

	reloaded, err := f.store.GetTicket(ctx, f.staff, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reloaded.Status)
	assert.Nil(t, reloaded.AssigneeID)
	assert.Equal(t, int64(1), reloaded.Version)

	history, err := f.store.ListHistory(ctx, f.staff, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestInactiveAssigneeRejected(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	user, err := f.users.GetByID(ctx, f.staff2.ID)
	require.NoError(t, err)
	user.Active = false
	require.NoError(t, f.users.Update(ctx, user))

	_, err = f.store.AssignTicket(ctx, f.staff, ticket.ID, f.staff2.ID, 0)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestAssignTicket(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	assigned, err := f.store.AssignTicket(ctx, f.staff, ticket.ID, f.staff2.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, assigned.Status)
	assert.Equal(t, f.staff2.ID, *assigned.AssigneeID)
	assert.Equal(t, int64(2), assigned.Version)

	same, err := f.store.AssignTicket(ctx, f.staff, ticket.ID, f.staff2.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), same.Version)

	_, err = f.store.AssignTicket(ctx, f.staff, ticket.ID, f.staff.ID, 1)
	assertCode(t, err, apperrors.CodeConflict)

	started, err := f.store.UpdateTicketStatus(ctx, f.staff2, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, started.Status)
}

func TestAssignClosedTicketIsInvalid(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.resolve(t, f.startWork(t, f.create(t, f.teacher).ID).ID)
	_, err := f.store.UpdateTicketStatus(ctx, f.teacher, ticket.ID, UpdateStatusInput{Status: domain.TicketStatusClosed})
	require.NoError(t, err)

	_, err = f.store.AssignTicket(ctx, f.admin, ticket.ID, f.staff2.ID, 0)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestStaleExpectedVersion(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.startWork(t, f.create(t, f.teacher).ID)

	_, err := f.store.UpdateTicketStatus(ctx, f.staff, ticket.ID, UpdateStatusInput{
		Status:          domain.TicketStatusResolved,
		ExpectedVersion: 1,
	})
	assertCode(t, err, apperrors.CodeConflict)
	assert.True(t, apperrors.ToDomainError(err).Retryable())

	resolved, err := f.store.UpdateTicketStatus(ctx, f.staff, ticket.ID, UpdateStatusInput{
		Status:          domain.TicketStatusResolved,
		ExpectedVersion: ticket.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, ticket.Version+1, resolved.Version)
}

func TestConcurrentStatusUpdatesOneWins(t *testing.T) {
	f := newStoreFixture(t)
	ticket := f.create(t, f.teacher)

	const writers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.store.UpdateTicketStatus(context.Background(), f.staff, ticket.ID, UpdateStatusInput{
				Status:          domain.TicketStatusInProgress,
				AssigneeID:      ptr(f.staff.ID),
				ExpectedVersion: 1,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case apperrors.HasCode(err, apperrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	reloaded, err := f.store.GetTicket(context.Background(), f.staff, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.Version)
}

func TestEditTicketFields(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	edited, err := f.store.EditTicketFields(ctx, f.teacher, ticket.ID, EditFieldsInput{
		Title:    ptr("Printer jams on every job"),
		Priority: ptr(domain.TicketPriorityHigh),
	})
	require.NoError(t, err)
	assert.Equal(t, "Printer jams on every job", edited.Title)
	assert.Equal(t, domain.TicketPriorityHigh, edited.Priority)
	assert.Equal(t, int64(2), edited.Version)

	_, err = f.store.EditTicketFields(ctx, f.teacher, ticket.ID, EditFieldsInput{})
	assertCode(t, err, apperrors.CodeValidation)
	_, err = f.store.EditTicketFields(ctx, f.teacher, ticket.ID, EditFieldsInput{Title: ptr("  ")})
	assertCode(t, err, apperrors.CodeValidation)
	_, err = f.store.EditTicketFields(ctx, f.staff, ticket.ID, EditFieldsInput{Title: ptr("Staff edit")})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.store.EditTicketFields(ctx, f.other, ticket.ID, EditFieldsInput{Title: ptr("Not mine")})
	assertCode(t, err, apperrors.CodeForbidden)

	f.startWork(t, ticket.ID)
	_, err = f.store.EditTicketFields(ctx, f.teacher, ticket.ID, EditFieldsInput{Title: ptr("Too late")})
	assertCode(t, err, apperrors.CodeForbidden)

	byAdmin, err := f.store.EditTicketFields(ctx, f.admin, ticket.ID, EditFieldsInput{Priority: ptr(domain.TicketPriorityUrgent)})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, byAdmin.Priority)

	unchanged, err := f.store.EditTicketFields(ctx, f.admin, ticket.ID, EditFieldsInput{Priority: ptr(domain.TicketPriorityUrgent)})
	require.NoError(t, err)
	assert.Equal(t, byAdmin.Version, unchanged.Version)

	assert.Len(t, f.eventsOfType(events.EventTicketUpdated), 2)
}

func TestHistoryVisibility(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.teacher)

	_, err := f.store.EditTicketFields(ctx, f.teacher, ticket.ID, EditFieldsInput{Description: ptr("Also the scanner")})
	require.NoError(t, err)
	f.startWork(t, ticket.ID)

	full, err := f.store.ListHistory(ctx, f.staff, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, full, 3)

	teacherView, err := f.store.ListHistory(ctx, f.teacher, ticket.ID)
	require.NoError(t, err)
	require.Len(t, teacherView, 2)
	for _, entry := range teacherView {
		assert.NotEqual(t, domain.ChangeTypeFields, entry.ChangeType)
	}

	_, err = f.store.ListHistory(ctx, f.other, ticket.ID)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestStringPreview(t *testing.T) {
	assert.Equal(t, "short", stringPreview("  short  ", 10))
	assert.Equal(t, "abcdefg...", stringPreview("abcdefghijklmnop", 10))
	assert.Equal(t, "ééé", stringPreview("éééééé", 3))
}

func TestTicketCategory(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	general := f.create(t, f.teacher)
	assert.Equal(t, domain.DefaultCategory, general.Category)

	network, err := f.store.CreateTicket(ctx, f.teacher, CreateTicketInput{
		Title:       "Wi-Fi drops in room 4",
		Description: "Laptops lose the connection every few minutes",
		Category:    "  Network ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Network", network.Category)
	created := f.eventsOfType(events.EventTicketCreated)
	require.Len(t, created, 2)
	assert.Equal(t, "Network", created[1].Payload.(events.TicketCreatedPayload).Category)

	_, err = f.store.CreateTicket(ctx, f.teacher, CreateTicketInput{
		Title:       "Too long",
		Description: "Category over the limit",
		Category:    strings.Repeat("x", maxCategoryLength+1),
	})
	assertCode(t, err, apperrors.CodeValidation)

	hardware, err := f.store.EditTicketFields(ctx, f.teacher, general.ID, EditFieldsInput{Category: ptr("Hardware")})
	require.NoError(t, err)
	assert.Equal(t, "Hardware", hardware.Category)
	assert.Equal(t, general.Version+1, hardware.Version)

	history, err := f.store.ListHistory(ctx, f.admin, general.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.DefaultCategory, history[0].OldValue["category"])
	assert.Equal(t, "Hardware", history[0].NewValue["category"])

	reset, err := f.store.EditTicketFields(ctx, f.teacher, general.ID, EditFieldsInput{Category: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCategory, reset.Category)

	listed, err := f.store.ListTickets(ctx, f.staff, TicketListFilter{Categories: []string{"network"}})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, network.ID, listed[0].ID)

	listed, err = f.store.ListTickets(ctx, f.staff, TicketListFilter{Categories: []string{"Email"}})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestTicketStats(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	open := f.create(t, f.teacher)
	_, err := f.store.EditTicketFields(ctx, f.teacher, open.ID, EditFieldsInput{Priority: ptr(domain.TicketPriorityUrgent)})
	require.NoError(t, err)
	f.resolve(t, f.startWork(t, f.create(t, f.teacher).ID).ID)

	closedUrgent := f.create(t, f.other)
	_, err = f.store.EditTicketFields(ctx, f.other, closedUrgent.ID, EditFieldsInput{Priority: ptr(domain.TicketPriorityUrgent)})
	require.NoError(t, err)
	f.startWork(t, closedUrgent.ID)
	f.resolve(t, closedUrgent.ID)
	_, err = f.store.UpdateTicketStatus(ctx, f.other, closedUrgent.ID, UpdateStatusInput{Status: domain.TicketStatusClosed})
	require.NoError(t, err)
	f.startWork(t, f.create(t, f.other).ID)

	mine, err := f.store.Stats(ctx, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)
	assert.Equal(t, int64(1), mine.Active)
	assert.Equal(t, int64(1), mine.Resolved)
	assert.Equal(t, int64(1), mine.Urgent)
	assert.Equal(t, map[domain.TicketStatus]int64{
		domain.TicketStatusOpen:       1,
		domain.TicketStatusInProgress: 0,
		domain.TicketStatusResolved:   1,
		domain.TicketStatusClosed:     0,
	}, mine.ByStatus)

	all, err := f.store.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Equal(t, int64(2), all.Active)
	assert.Equal(t, int64(1), all.Resolved)
	assert.Equal(t, int64(1), all.Urgent, "closed urgent tickets are not counted")
	assert.Equal(t, int64(1), all.ByStatus[domain.TicketStatusClosed])

	staff, err := f.store.Stats(ctx, f.staff)
	require.NoError(t, err)
	assert.Equal(t, all, staff)

	empty, err := f.store.Stats(ctx, f.addUser(t, "new@school.test", domain.RoleTeacher))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Len(t, empty.ByStatus, 4)

	_, err = f.store.Stats(ctx, domain.Actor{})
	assertCode(t, err, apperrors.CodeForbidden)
}
