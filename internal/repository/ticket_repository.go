package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-it/helpdesk-service/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TicketFilter captures list parameters. CreatorID is set by the caller to
// scope results to a single requester. Categories match case-insensitively.
type TicketFilter struct {
	CreatorID  *string
	AssigneeID *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []string
	SearchTerm *string
	Limit      int
	Offset     int
}

// Normalize clamps paging values.
func (f TicketFilter) Normalize() TicketFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// TicketCount is the number of tickets sharing a status and priority.
type TicketCount struct {
	Status   domain.TicketStatus
	Priority domain.TicketPriority
	Count    int64
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Count groups the tickets matching filter by status and priority.
	// Paging fields are ignored.
	Count(ctx context.Context, filter TicketFilter) ([]TicketCount, error)
	// UpdateIfVersion writes ticket and appends entries to its history in one
	// unit, provided the stored version still equals expectedVersion.
	UpdateIfVersion(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entries []domain.TicketHistory) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, category, priority, status, creator_id, assignee_id,
               version, created_at, updated_at, resolved_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.Category == "" {
		ticket.Category = domain.DefaultCategory
	}
	const query = `
        INSERT INTO tickets (title, description, category, priority, status, creator_id, assignee_id, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.CreatorID,
		ticket.AssigneeID,
		ticket.Version,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) UpdateIfVersion(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entries []domain.TicketHistory) error {
	if _, ok := canonicalID(ticket.ID); !ok {
		return ErrNotFound
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin ticket update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, priority=$4, status=$5, assignee_id=$6,
            version=$7, updated_at=$8, resolved_at=$9, closed_at=$10
        WHERE id=$11 AND version=$12`
	cmd, err := tx.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.Version,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	for i := range entries {
		if err := insertHistory(ctx, tx, &entries[i]); err != nil {
			return fmt.Errorf("insert ticket history: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	filter = filter.Normalize()
	where, args, ok := ticketWhere(filter)
	if !ok {
		return []domain.Ticket{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, where, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) ([]TicketCount, error) {
	where, args, ok := ticketWhere(filter)
	if !ok {
		return []TicketCount{}, nil
	}

	query := fmt.Sprintf(`SELECT status, priority, COUNT(*) FROM tickets WHERE %s GROUP BY status, priority`, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []TicketCount{}
	for rows.Next() {
		var count TicketCount
		if err := rows.Scan(&count.Status, &count.Priority, &count.Count); err != nil {
			return nil, err
		}
		result = append(result, count)
	}
	return result, rows.Err()
}

// ticketWhere renders filter as a WHERE clause. ok is false when the filter
// names a malformed id and therefore cannot match any row.
func ticketWhere(filter TicketFilter) (where string, args []any, ok bool) {
	clauses := []string{"1=1"}
	placeholder := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CreatorID != nil {
		id, valid := canonicalID(*filter.CreatorID)
		if !valid {
			return "", nil, false
		}
		clauses = append(clauses, "creator_id="+placeholder(id))
	}
	if filter.AssigneeID != nil {
		id, valid := canonicalID(*filter.AssigneeID)
		if !valid {
			return "", nil, false
		}
		clauses = append(clauses, "assignee_id="+placeholder(id))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = placeholder(status)
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			placeholders[i] = placeholder(pr)
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			placeholders[i] = placeholder(strings.ToLower(category))
		}
		clauses = append(clauses, fmt.Sprintf("LOWER(category) IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		p := placeholder("%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%")
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", p, p))
	}
	return strings.Join(clauses, " AND "), args, true
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
