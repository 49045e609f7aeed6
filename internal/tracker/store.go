package tracker

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const issueFields = `id, table_name, column_name, rule, failed_row_id, failed_value,
	action_status, assignee, notes, created_at, updated_at`

// Store persists tracker issues in SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// Open opens (or creates) the tracker database at path and applies pending
// migrations. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("tracker store ready")
	return &Store{db: db, log: log, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Import adds failed records as Open issues, skipping any whose key is
// already tracked. It returns how many were added.
func (s *Store) Import(ctx context.Context, records []types.FailedRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO issues (`+issueFields+`, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := s.now().UTC().Format(time.RFC3339Nano)
	added := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			uuid.NewString(), r.Table, r.Column, r.RuleDisplayName, r.FailedRowID, r.FailedValue,
			StatusOpen, now, now, r.DedupKey())
		if err != nil {
			return 0, fmt.Errorf("insert issue: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.Info().Int("added", added).Int("records", len(records)).Msg("failed records imported")
	return added, nil
}

// where renders f as a WHERE clause with its arguments.
func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	in := func(col string, values []string) {
		if len(values) == 0 {
			return
		}
		clauses = append(clauses, col+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	in("action_status", f.Statuses)
	in("table_name", f.Tables)
	in("assignee", f.Assignees)
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns the issues matching f in import order.
func (s *Store) List(ctx context.Context, f Filter) ([]Issue, error) {
	where, args := f.where()
	rows, err := s.db.QueryContext(ctx, `SELECT `+issueFields+` FROM issues`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(sc scanner) (Issue, error) {
	var (
		i                  Issue
		created, updated string
	)
	err := sc.Scan(&i.ID, &i.Table, &i.Column, &i.Rule, &i.FailedRowID, &i.FailedValue,
		&i.Status, &i.Assignee, &i.Notes, &created, &updated)
	if err != nil {
		return Issue{}, err
	}
	i.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	i.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return i, nil
}

func (s *Store) Get(ctx context.Context, id string) (Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueFields+` FROM issues WHERE id = ?`, id)
	i, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return i, err
}

// Update edits the status, assignee or notes of one issue.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Issue, error) {
	if p.Status != nil && !config.ValidStatus(*p.Status) {
		return Issue{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}

	var (
		sets []string
		args []any
	)
	if p.Status != nil {
		sets, args = append(sets, "action_status = ?"), append(args, *p.Status)
	}
	if p.Assignee != nil {
		sets, args = append(sets, "assignee = ?"), append(args, strings.TrimSpace(*p.Assignee))
	}
	if p.Notes != nil {
		sets, args = append(sets, "notes = ?"), append(args, *p.Notes)
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, s.now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE issues SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Issue{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Issue{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

// BulkUpdate sets status and assignee on every issue matching f. Empty
// values leave the field untouched.
func (s *Store) BulkUpdate(ctx context.Context, f Filter, status, assignee string) (int64, error) {
	if status != "" && !config.ValidStatus(status) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var (
		sets []string
		args []any
	)
	if status != "" {
		sets, args = append(sets, "action_status = ?"), append(args, status)
	}
	if assignee = strings.TrimSpace(assignee); assignee != "" {
		sets, args = append(sets, "assignee = ?"), append(args, assignee)
	}
	if len(sets) == 0 {
		return 0, nil
	}
	sets, args = append(sets, "updated_at = ?"), append(args, s.now().UTC().Format(time.RFC3339Nano))

	where, wargs := f.where()
	res, err := s.db.ExecContext(ctx, `UPDATE issues SET `+strings.Join(sets, ", ")+where, append(args, wargs...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearResolved deletes issues in the Resolved state.
func (s *Store) ClearResolved(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE action_status = ?`, StatusResolved)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		s.log.Info().Int64("removed", n).Msg("resolved issues cleared")
	}
	return n, err
}

// Metrics counts every tracked issue.
func (s *Store) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action_status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action_status = ? THEN 1 ELSE 0 END), 0)
		FROM issues`, StatusOpen, StatusInProgress, StatusResolved).Scan(&m.Total, &m.Open, &m.Resolved)
	if err != nil {
		return Metrics{}, err
	}
	m.ResolutionRate = resolutionRate(m.Resolved, m.Total)
	return m, nil
}

// FilteredSummary counts the issues matching f.
func (s *Store) FilteredSummary(ctx context.Context, f Filter) (FilteredSummary, error) {
	where, args := f.where()
	var out FilteredSummary
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action_status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT table_name)
		FROM issues`+where, append([]any{StatusOpen, StatusInProgress}, args...)...).
		Scan(&out.Filtered, &out.Priority, &out.AffectedTables)
	return out, err
}

// SummaryReport builds the one-row report stamped with now.
func (s *Store) SummaryReport(ctx context.Context, now time.Time) (SummaryReport, error) {
	r := SummaryReport{ReportDate: now.Format("2006-01-02 15:04:05")}
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action_status = ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT table_name),
			COUNT(DISTINCT rule)
		FROM issues`, StatusOpen, StatusInProgress, StatusResolved).
		Scan(&r.TotalIssues, &r.OpenIssues, &r.InProgress, &r.ResolvedIssues, &r.UniqueTables, &r.UniqueRules)
	return r, err
}

// Assignees returns the distinct non-empty assignees, sorted.
func (s *Store) Assignees(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "assignee")
}

// Tables returns the distinct tables with tracked issues, sorted.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "table_name")
}

func (s *Store) distinct(ctx context.Context, col string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT `+col+` FROM issues WHERE `+col+` != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, rows.Err()
}
