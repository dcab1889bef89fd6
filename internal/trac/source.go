package trac

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/pkg/types"
)

// Selection restricts which tickets a run migrates
type Selection struct {
	TicketIDs []int
	// Components is an allow list, or a deny list when ExcludeComponents
	// is set.
	Components        []string
	ExcludeComponents bool
	Milestones        []string
	Offset            int
	// Limit of 0 selects every matching ticket.
	Limit int
}

// Source queries a Trac database
type Source struct {
	db     *sql.DB
	driver Driver
	logger *zap.Logger
}

// NewSource creates a source over an open database
func NewSource(db *sql.DB, driver Driver, logger *zap.Logger) *Source {
	return &Source{db: db, driver: driver, logger: logger}
}

func (s *Source) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = rebind(s.driver, query)
	s.logger.Debug("trac query", zap.String("sql", query), zap.Any("args", args))
	return s.db.QueryContext(ctx, query, args...)
}

// Milestones returns the open milestones, restricted to names when given,
// ordered by due date.
func (s *Source) Milestones(ctx context.Context, names []string) ([]types.Milestone, error) {
	q := "SELECT name, COALESCE(due, 0), COALESCE(completed, 0) FROM milestone WHERE COALESCE(completed, 0) = 0"
	var args []any
	if len(names) > 0 {
		clause, a := inClause("name", names)
		q += " AND " + clause
		args = a
	}
	q += " ORDER BY due"

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestones: %w", err)
	}
	defer rows.Close()

	var out []types.Milestone
	for rows.Next() {
		var (
			name      string
			due       int64
			completed int64
		)
		if err := rows.Scan(&name, &due, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		out = append(out, types.Milestone{
			Name:      name,
			Due:       types.FromMicros(due),
			Completed: completed != 0,
		})
	}

	return out, rows.Err()
}

var categoryColumns = []struct {
	category types.Category
	column   string
}{
	{types.CategoryType, "type"},
	{types.CategoryComponent, "component"},
	{types.CategoryPriority, "priority"},
	{types.CategoryResolution, "resolution"},
	{types.CategorySeverity, "severity"},
}

// LabelValues returns every distinct category value found in tickets and
// in the platform custom field. MS* platforms are folded into one value.
func (s *Source) LabelValues(ctx context.Context) ([]types.LabelValue, error) {
	var out []types.LabelValue

	for _, cc := range categoryColumns {
		q := fmt.Sprintf("SELECT DISTINCT %[1]s FROM ticket WHERE COALESCE(%[1]s, '') <> '' ORDER BY %[1]s", cc.column)
		values, err := s.column(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s values: %w", cc.column, err)
		}
		for _, v := range values {
			out = append(out, types.LabelValue{Category: cc.category, Value: v})
		}
	}

	platforms, err := s.column(ctx, `SELECT DISTINCT value FROM ticket_custom
		WHERE name = 'platform' AND value NOT LIKE 'MS%' AND value <> 'All' AND value <> 'Unspecified'
		ORDER BY value`)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform values: %w", err)
	}
	for _, v := range platforms {
		if v == "" {
			continue
		}
		out = append(out, types.LabelValue{Category: types.CategoryPlatform, Value: v})
	}
	out = append(out, types.LabelValue{Category: types.CategoryPlatform, Value: types.WindowsPlatform})

	return out, nil
}

func (s *Source) column(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v.String)
	}
	return out, rows.Err()
}

// Tickets returns the tickets that are not closed and match sel, in
// ascending id order.
func (s *Source) Tickets(ctx context.Context, sel Selection) ([]types.Ticket, error) {
	q := `SELECT id, COALESCE(summary, ''), COALESCE(description, ''), COALESCE(type, ''),
		COALESCE(component, ''), COALESCE(priority, ''), COALESCE(resolution, ''),
		COALESCE(severity, ''), COALESCE(milestone, ''), COALESCE(version, ''),
		COALESCE(status, ''), COALESCE(reporter, ''), COALESCE(time, 0)
		FROM ticket WHERE status <> 'closed'`
	var args []any

	if len(sel.TicketIDs) > 0 {
		ids := make([]string, len(sel.TicketIDs))
		for i, id := range sel.TicketIDs {
			ids[i] = strconv.Itoa(id)
		}
		q += " AND id IN (" + strings.Join(ids, ", ") + ")"
	}
	if len(sel.Components) > 0 {
		clause, a := inClause("component", sel.Components)
		if sel.ExcludeComponents {
			// NOT IN is never true for NULL; tickets without a component
			// are not on the deny list.
			clause = "(" + strings.Replace(clause, " IN ", " NOT IN ", 1) + " OR component IS NULL)"
		}
		q += " AND " + clause
		args = append(args, a...)
	}
	if len(sel.Milestones) > 0 {
		clause, a := inClause("milestone", sel.Milestones)
		q += " AND " + clause
		args = append(args, a...)
	}
	q += " ORDER BY id"
	if sel.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, sel.Limit, sel.Offset)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	var out []types.Ticket
	for rows.Next() {
		var (
			t  types.Ticket
			ts int64
		)
		if err := rows.Scan(&t.ID, &t.Summary, &t.Description, &t.Type,
			&t.Component, &t.Priority, &t.Resolution,
			&t.Severity, &t.Milestone, &t.Version,
			&t.Status, &t.Reporter, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		t.Time = types.FromMicros(ts)
		out = append(out, t)
	}

	return out, rows.Err()
}

// Platform returns the ticket's platform custom field, coarsened, or ""
func (s *Source) Platform(ctx context.Context, ticketID int) (string, error) {
	values, err := s.column(ctx, "SELECT value FROM ticket_custom WHERE ticket = ? AND name = 'platform'", ticketID)
	if err != nil {
		return "", fmt.Errorf("failed to query platform of ticket %d: %w", ticketID, err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return types.CanonicalPlatform(values[0]), nil
}

// Changes returns the ticket's history ordered by time, field changes
// before the comment recorded at the same instant.
func (s *Source) Changes(ctx context.Context, ticketID int) ([]types.Change, error) {
	rows, err := s.query(ctx, `SELECT ticket, COALESCE(time, 0), COALESCE(author, ''), field,
		COALESCE(oldvalue, ''), COALESCE(newvalue, '')
		FROM ticket_change WHERE ticket = ?
		ORDER BY time, CASE WHEN field = 'comment' THEN 1 ELSE 0 END`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes of ticket %d: %w", ticketID, err)
	}
	defer rows.Close()

	var out []types.Change
	for rows.Next() {
		var (
			c  types.Change
			ts int64
		)
		if err := rows.Scan(&c.TicketID, &ts, &c.Author, &c.Field, &c.OldValue, &c.NewValue); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Time = types.FromMicros(ts)
		out = append(out, c)
	}

	return out, rows.Err()
}

// Attachments returns the ticket's attachments ordered by time
func (s *Source) Attachments(ctx context.Context, ticketID int) ([]types.Attachment, error) {
	rows, err := s.query(ctx, `SELECT filename, COALESCE(description, ''), COALESCE(author, ''),
		COALESCE(size, 0), COALESCE(time, 0)
		FROM attachment WHERE type = 'ticket' AND id = ? ORDER BY time`, strconv.Itoa(ticketID))
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments of ticket %d: %w", ticketID, err)
	}
	defer rows.Close()

	var out []types.Attachment
	for rows.Next() {
		var (
			a  = types.Attachment{TicketID: ticketID}
			ts int64
		)
		if err := rows.Scan(&a.Filename, &a.Description, &a.Author, &a.Size, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.Time = types.FromMicros(ts)
		out = append(out, a)
	}

	return out, rows.Err()
}
