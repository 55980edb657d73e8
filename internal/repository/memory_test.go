package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-it/helpdesk-service/internal/domain"
)

func newTicket(creator string) *domain.Ticket {
	return &domain.Ticket{
		Title:       "Projector",
		Description: "Room 12 projector flickers",
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusOpen,
		CreatorID:   creator,
		Version:     1,
	}
}

func TestMemoryTicketUpdateIfVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()

	ticket := newTicket("u-1")
	require.NoError(t, repo.Create(ctx, ticket))
	require.NotEmpty(t, ticket.ID)

	updated := ticket.Clone()
	updated.Status = domain.TicketStatusInProgress
	updated.Version = 2
	entries := []domain.TicketHistory{{
		TicketID:   ticket.ID,
		ActorID:    "s-1",
		ChangeType: domain.ChangeTypeStatus,
		OldValue:   map[string]any{"status": "OPEN"},
		NewValue:   map[string]any{"status": "IN_PROGRESS"},
	}}
	require.NoError(t, repo.UpdateIfVersion(ctx, updated, 1, entries))

	stale := ticket.Clone()
	stale.Title = "stale"
	stale.Version = 2
	assert.ErrorIs(t, repo.UpdateIfVersion(ctx, stale, 1, nil), ErrVersionConflict)

	stored, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Equal(t, "Projector", stored.Title)
	assert.Equal(t, int64(2), stored.Version)

	history, err := repo.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotEmpty(t, history[0].ID)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)
}

func TestMemoryTicketUpdateMissing(t *testing.T) {
	repo := NewMemoryTicketRepository()
	err := repo.UpdateIfVersion(context.Background(), &domain.Ticket{ID: "missing"}, 1, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTicketReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	ticket := newTicket("u-1")
	require.NoError(t, repo.Create(ctx, ticket))

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	got.Status = domain.TicketStatusClosed

	again, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, again.Status)
}

func TestMemoryTicketConcurrentCAS(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	ticket := newTicket("u-1")
	require.NoError(t, repo.Create(ctx, ticket))

	const writers = 16
	var wins, conflicts int32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			next := ticket.Clone()
			next.Version = 2
			switch err := repo.UpdateIfVersion(ctx, next, 1, nil); err {
			case nil:
				atomic.AddInt32(&wins, 1)
			case ErrVersionConflict:
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(writers-1), conflicts)
}

func TestMemoryTicketList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	mine := newTicket("u-1")
	mine.Title = "Printer jam"
	require.NoError(t, repo.Create(ctx, mine))
	theirs := newTicket("u-2")
	theirs.Priority = domain.TicketPriorityUrgent
	require.NoError(t, repo.Create(ctx, theirs))

	creator := "u-1"
	got, err := repo.List(ctx, TicketFilter{CreatorID: &creator})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	got, err = repo.List(ctx, TicketFilter{Priorities: []domain.TicketPriority{domain.TicketPriorityUrgent}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, theirs.ID, got[0].ID)

	term := "PRINTER"
	got, err = repo.List(ctx, TicketFilter{SearchTerm: &term})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.List(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, theirs.ID, got[0].ID, "most recently updated first")

	got, err = repo.List(ctx, TicketFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTicketFilterNormalize(t *testing.T) {
	assert.Equal(t, defaultListLimit, TicketFilter{}.Normalize().Limit)
	assert.Equal(t, maxListLimit, TicketFilter{Limit: 500}.Normalize().Limit)
	assert.Equal(t, 0, TicketFilter{Offset: -3}.Normalize().Offset)
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user := &domain.User{Email: "ada@school.test", FullName: "Ada", Role: domain.RoleTeacher, Active: true}
	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)

	dup := &domain.User{Email: "ADA@school.test", FullName: "Other", Role: domain.RoleTeacher}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)

	got, err := repo.GetByEmail(ctx, "Ada@School.test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got.Role = domain.RoleITStaff
	require.NoError(t, repo.Update(ctx, got))

	staff, err := repo.List(ctx, UserFilter{Roles: []domain.Role{domain.RoleITStaff}})
	require.NoError(t, err)
	require.Len(t, staff, 1)

	assert.ErrorIs(t, repo.Update(ctx, &domain.User{ID: "nope"}), ErrNotFound)
}

func TestMemoryCommentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCommentRepository()

	require.NoError(t, repo.Create(ctx, &domain.Comment{TicketID: "t-1", AuthorID: "u-1", Content: "first"}))
	require.NoError(t, repo.Create(ctx, &domain.Comment{TicketID: "t-1", AuthorID: "s-1", Content: "second", IsInternal: true}))
	require.NoError(t, repo.Create(ctx, &domain.Comment{TicketID: "t-2", AuthorID: "u-1", Content: "elsewhere"}))

	got, err := repo.ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.True(t, got[1].IsInternal)
}

func TestMemoryTicketCount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()

	for _, tc := range []struct {
		creator  string
		category string
		status   domain.TicketStatus
		priority domain.TicketPriority
	}{
		{"u-1", "Network", domain.TicketStatusOpen, domain.TicketPriorityUrgent},
		{"u-1", "Network", domain.TicketStatusOpen, domain.TicketPriorityUrgent},
		{"u-1", "Hardware", domain.TicketStatusResolved, domain.TicketPriorityLow},
		{"u-2", "Email", domain.TicketStatusClosed, domain.TicketPriorityUrgent},
	} {
		ticket := newTicket(tc.creator)
		ticket.Category = tc.category
		ticket.Status = tc.status
		ticket.Priority = tc.priority
		require.NoError(t, repo.Create(ctx, ticket))
	}

	creator := "u-1"
	counts, err := repo.Count(ctx, TicketFilter{CreatorID: &creator, Limit: 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []TicketCount{
		{Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityUrgent, Count: 2},
		{Status: domain.TicketStatusResolved, Priority: domain.TicketPriorityLow, Count: 1},
	}, counts)

	counts, err = repo.Count(ctx, TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, counts, 3)

	got, err := repo.List(ctx, TicketFilter{Categories: []string{"network", "EMAIL"}})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMemoryUserPasswordHash(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user := &domain.User{Email: "ada@school.test", FullName: "Ada", PasswordHash: "hash-1", Role: domain.RoleTeacher, Active: true}
	require.NoError(t, repo.Create(ctx, user))

	profile := *user
	profile.PasswordHash = ""
	profile.FullName = "Ada Lovelace"
	require.NoError(t, repo.Update(ctx, &profile))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", stored.FullName)
	assert.Equal(t, "hash-1", stored.PasswordHash, "profile updates keep the password hash")

	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "hash-2"))
	stored, err = repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", stored.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, "nope", "hash-3"), ErrNotFound)
}
