package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/freedom_case_2/crcollector/internal/models"
)

// Pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var requestColumns = []string{
	"id", "cr_number", "source", "source_id", "project", "requester_id", "requester_name",
	"requester_email", "title", "description", "category", "priority", "channel_id",
	"channel_name", "thread_ts", "original_url", "attachments", "status", "assignee",
	"requested_at", "collected_at", "updated_at",
}

const priorityOrder = "CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC"

type PGStore struct {
	Pool Pool
	loc  *time.Location
	now  func() time.Time
}

func NewPGStore(pool Pool, loc *time.Location) *PGStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PGStore{Pool: pool, loc: loc, now: time.Now}
}

func (s *PGStore) Close() {
	s.Pool.Close()
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PGStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) SaveRequest(ctx context.Context, r models.Request) (models.Request, error) {
	r, err := prepare(r, s.now())
	if err != nil {
		return models.Request{}, err
	}
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		cr, err := s.nextCR(ctx, tx)
		if err != nil {
			return err
		}
		r.CRNumber = cr
		query, args, err := psql.Insert("customer_requests").
			Columns(requestColumns...).
			Values(requestValues(r)...).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return models.Request{}, mapError(err, "request", r.Key())
	}
	return r, nil
}

func (s *PGStore) InsertIfAbsent(ctx context.Context, r models.Request) (models.Request, bool, error) {
	r, err := prepare(r, s.now())
	if err != nil {
		return models.Request{}, false, err
	}
	inserted := false
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		cr, err := s.nextCR(ctx, tx)
		if err != nil {
			return err
		}
		r.CRNumber = cr
		query, args, err := psql.Insert("customer_requests").
			Columns(requestColumns...).
			Values(requestValues(r)...).
			Suffix("ON CONFLICT (source, source_id) DO NOTHING RETURNING id").
			ToSql()
		if err != nil {
			return err
		}
		var id string
		switch err := tx.QueryRow(ctx, query, args...).Scan(&id); {
		case errors.Is(err, pgx.ErrNoRows):
			return nil
		case err != nil:
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return models.Request{}, false, mapError(err, "request", r.Key())
	}
	return r, inserted, nil
}

// nextCR must run inside a transaction: the advisory lock holds until commit,
// so writers sharing a prefix number one at a time.
func (s *PGStore) nextCR(ctx context.Context, q querier) (string, error) {
	prefix := crPrefix(s.now(), s.loc)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, prefix); err != nil {
		return "", err
	}
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM customer_requests WHERE cr_number LIKE $1`, prefix+"%").Scan(&n); err != nil {
		return "", err
	}
	return formatCR(prefix, n+1), nil
}

func (s *PGStore) IsDuplicate(ctx context.Context, sourceID string, source models.Source) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customer_requests WHERE source = $1 AND source_id = $2)`,
		string(source), sourceID).Scan(&exists)
	if err != nil {
		return false, mapError(err, "request", models.NaturalKey{Source: source, SourceID: sourceID})
	}
	return exists, nil
}

func (s *PGStore) GetAll(ctx context.Context) ([]models.Request, error) {
	return s.ListRequests(ctx, ListFilter{})
}

func (s *PGStore) GetByDateWindow(ctx context.Context, start, end time.Time) ([]models.Request, error) {
	builder := psql.Select(requestColumns...).
		From("customer_requests").
		Where(sq.GtOrEq{"requested_at": start.UTC()}).
		Where(sq.LtOrEq{"requested_at": end.UTC()}).
		OrderBy(priorityOrder, "collected_at DESC")
	return s.selectRequests(ctx, builder)
}

func (s *PGStore) GetByCRNumber(ctx context.Context, cr string) (models.Request, error) {
	builder := psql.Select(requestColumns...).
		From("customer_requests").
		Where(sq.Eq{"cr_number": cr}).
		OrderBy("collected_at DESC").
		Limit(1)
	out, err := s.selectRequests(ctx, builder)
	if err != nil {
		return models.Request{}, err
	}
	if len(out) == 0 {
		return models.Request{}, fmt.Errorf("request %s: %w", cr, ErrNotFound)
	}
	return out[0], nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, cr string, status models.Status, assignee string) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	builder := psql.Update("customer_requests").
		Set("status", string(status)).
		Set("updated_at", s.now().UTC()).
		Where(sq.Eq{"cr_number": cr})
	if assignee != "" {
		builder = builder.Set("assignee", assignee)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update status %s: %w", cr, err)
	}
	return nil
}

func (s *PGStore) ListRequests(ctx context.Context, f ListFilter) ([]models.Request, error) {
	builder := psql.Select(requestColumns...).
		From("customer_requests").
		OrderBy(priorityOrder, "collected_at DESC")
	if f.Project != "" {
		builder = builder.Where(sq.Eq{"project": f.Project})
	}
	if f.Source != "" {
		builder = builder.Where(sq.Eq{"source": string(f.Source)})
	}
	if f.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Priority != "" {
		builder = builder.Where(sq.Eq{"priority": string(f.Priority)})
	}
	if !f.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"requested_at": f.Since.UTC()})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		builder = builder.Offset(uint64(f.Offset))
	}
	return s.selectRequests(ctx, builder)
}

func (s *PGStore) selectRequests(ctx context.Context, builder sq.SelectBuilder) ([]models.Request, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Request{}
	for rows.Next() {
		var (
			r                models.Request
			source, category string
			priority, status string
		)
		if err := rows.Scan(&r.ID, &r.CRNumber, &source, &r.SourceID, &r.Project, &r.RequesterID,
			&r.RequesterName, &r.RequesterEmail, &r.Title, &r.Description, &category, &priority,
			&r.ChannelID, &r.ChannelName, &r.ThreadTS, &r.OriginalURL, &r.Attachments, &status,
			&r.Assignee, &r.RequestedAt, &r.CollectedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Source = models.Source(source)
		r.Category = models.Category(category)
		r.Priority = models.Priority(priority)
		r.Status = models.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) SaveDailyReport(ctx context.Context, rep models.DailyReport) (models.DailyReport, error) {
	rep = prepareReport(rep, s.now())
	byCategory, _ := json.Marshal(rep.ByCategory)
	byPriority, _ := json.Marshal(rep.ByPriority)
	bySource, _ := json.Marshal(rep.BySource)
	ids := make([]string, 0, len(rep.Requests))
	for _, r := range rep.Requests {
		ids = append(ids, r.ID)
	}

	query, args, err := psql.Insert("daily_reports").
		Columns("id", "report_date", "window_start", "window_end", "total_requests", "by_category",
			"by_priority", "by_source", "request_ids", "generated_at", "posted_channel_id",
			"posted_message_ts", "exported_file").
		Values(rep.ID, rep.ReportDate, rep.WindowStart.UTC(), rep.WindowEnd.UTC(), rep.TotalRequests,
			byCategory, byPriority, bySource, ids, rep.GeneratedAt, rep.PostedChannelID,
			rep.PostedMessageTS, rep.ExportedFile).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			posted_channel_id = EXCLUDED.posted_channel_id,
			posted_message_ts = EXCLUDED.posted_message_ts,
			exported_file = EXCLUDED.exported_file`).
		ToSql()
	if err != nil {
		return models.DailyReport{}, err
	}
	if _, err := s.Pool.Exec(ctx, query, args...); err != nil {
		return models.DailyReport{}, fmt.Errorf("save daily report %s: %w", rep.ID, err)
	}
	return rep, nil
}

func (s *PGStore) RecordRun(ctx context.Context, run models.RunResult) error {
	if run.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	counts, _ := json.Marshal(run.PerSourceCounts)
	errs, _ := json.Marshal(run.PerSourceErrors)
	query, args, err := psql.Insert("collection_runs").
		Columns("id", "trigger", "started_at", "finished_at", "per_source_counts",
			"per_source_errors", "skipped", "truncated", "total_duration_ms").
		Values(run.RunID, string(run.Trigger), run.StartedAt.UTC(), run.FinishedAt.UTC(), counts,
			errs, nonNil(run.Skipped), nonNil(run.Truncated), run.TotalDurationMs).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *PGStore) LatestRun(ctx context.Context) (models.RunResult, error) {
	var (
		run          models.RunResult
		trigger      string
		counts, errs []byte
	)
	err := s.Pool.QueryRow(ctx, `SELECT id, trigger, started_at, finished_at, per_source_counts,
		per_source_errors, skipped, truncated, total_duration_ms
		FROM collection_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.RunID, &trigger, &run.StartedAt, &run.FinishedAt, &counts, &errs,
			&run.Skipped, &run.Truncated, &run.TotalDurationMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RunResult{}, fmt.Errorf("collection run: %w", ErrNotFound)
	}
	if err != nil {
		return models.RunResult{}, err
	}
	run.Trigger = models.Trigger(trigger)
	if err := json.Unmarshal(counts, &run.PerSourceCounts); err != nil {
		return models.RunResult{}, fmt.Errorf("decode run counts: %w", err)
	}
	if err := json.Unmarshal(errs, &run.PerSourceErrors); err != nil {
		return models.RunResult{}, fmt.Errorf("decode run errors: %w", err)
	}
	return run, nil
}

func requestValues(r models.Request) []any {
	return []any{
		r.ID, r.CRNumber, string(r.Source), r.SourceID, r.Project, r.RequesterID, r.RequesterName,
		r.RequesterEmail, r.Title, r.Description, string(r.Category), string(r.Priority), r.ChannelID,
		r.ChannelName, r.ThreadTS, r.OriginalURL, nonNil(r.Attachments), string(r.Status), r.Assignee,
		r.RequestedAt, r.CollectedAt, r.UpdatedAt,
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func mapError(err error, entity string, key models.NaturalKey) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s/%s: %w", entity, key.Source, key.SourceID, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s/%s: %w", entity, key.Source, key.SourceID, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s/%s: %w", entity, key.Source, key.SourceID, ErrAlreadyExists)
		case "23514": // check_violation
			return fmt.Errorf("%s %s/%s: %w", entity, key.Source, key.SourceID, ErrInvalidInput)
		}
	}
	return fmt.Errorf("%s %s/%s: %w", entity, key.Source, key.SourceID, err)
}
