package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedom_case_2/crcollector/internal/models"
)

func newMockStore(t *testing.T) (*PGStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := NewPGStore(mock, seoul(t))
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestPGStoreSaveRequest(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("CR-20261015-").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM customer_requests WHERE cr_number LIKE \$1`).
		WithArgs("CR-20261015-%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO customer_requests`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	saved, err := s.SaveRequest(context.Background(), sample(models.SourceConfluence, "page-123"))
	require.NoError(t, err)
	assert.Equal(t, "CR-20261015-005", saved.CRNumber)
	assert.Equal(t, models.StatusNew, saved.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreSaveRequestUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("CR-20261015-").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("CR-20261015-%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO customer_requests`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := s.SaveRequest(context.Background(), sample(models.SourceConfluence, "page-123"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreInsertIfAbsent(t *testing.T) {
	tests := []struct {
		name     string
		rows     *pgxmock.Rows
		inserted bool
	}{
		{name: "new key", rows: pgxmock.NewRows([]string{"id"}).AddRow("generated"), inserted: true},
		{name: "existing key", rows: pgxmock.NewRows([]string{"id"}), inserted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
				WithArgs("CR-20261015-").
				WillReturnResult(pgxmock.NewResult("SELECT", 1))
			mock.ExpectQuery(`SELECT COUNT`).
				WithArgs("CR-20261015-%").
				WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
			mock.ExpectQuery(`INSERT INTO customer_requests .* ON CONFLICT \(source, source_id\) DO NOTHING RETURNING id`).
				WillReturnRows(tt.rows)
			mock.ExpectCommit()

			_, inserted, err := s.InsertIfAbsent(context.Background(), sample(models.SourceSlack, "1.1"))
			require.NoError(t, err)
			assert.Equal(t, tt.inserted, inserted)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPGStoreNumberingLockFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("CR-20261015-").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, _, err := s.InsertIfAbsent(context.Background(), sample(models.SourceSlack, "1.1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreIsDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("slack", "1.1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	dup, err := s.IsDuplicate(context.Background(), "1.1", models.SourceSlack)
	require.NoError(t, err)
	assert.True(t, dup)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreUpdateStatus(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.UpdateStatus(context.Background(), "CR-20261015-001", "archived", "")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	mock.ExpectExec(`UPDATE customer_requests SET status = \$1, updated_at = \$2 WHERE cr_number = \$3`).
		WithArgs("accepted", pgxmock.AnyArg(), "CR-20261015-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.NoError(t, s.UpdateStatus(context.Background(), "CR-20261015-001", models.StatusAccepted, ""))

	mock.ExpectExec(`UPDATE customer_requests SET status = \$1, updated_at = \$2, assignee = \$3 WHERE cr_number = \$4`).
		WithArgs("completed", pgxmock.AnyArg(), "mina", "CR-20261015-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.UpdateStatus(context.Background(), "CR-20261015-001", models.StatusCompleted, "mina"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetByCRNumberNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM customer_requests WHERE cr_number = \$1`).
		WithArgs("CR-20261015-009").
		WillReturnRows(pgxmock.NewRows(requestColumns))

	_, err := s.GetByCRNumber(context.Background(), "CR-20261015-009")
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreListRequestsScans(t *testing.T) {
	s, mock := newMockStore(t)
	rows := pgxmock.NewRows(requestColumns).AddRow(
		"id-1", "CR-20261015-001", "figma", "c-1", "fanlight", "u1", "Heather", "",
		"Fix button", "Fix button please", "bug", "high", "", "", "", "https://figma.com/file/k",
		[]string{}, "new", "", fixedNow, fixedNow, fixedNow,
	)
	mock.ExpectQuery(`SELECT .* FROM customer_requests WHERE project = \$1 AND source = \$2 ORDER BY CASE priority`).
		WithArgs("fanlight", "figma").
		WillReturnRows(rows)

	got, err := s.ListRequests(context.Background(), ListFilter{Project: "fanlight", Source: models.SourceFigma})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.PriorityHigh, got[0].Priority)
	assert.Equal(t, models.SourceFigma, got[0].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreLatestRunEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM collection_runs ORDER BY started_at DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestRun(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, Migrate(ctx, pool))

	s := NewPGStore(pool, time.UTC)
	key := "it-" + time.Now().Format("150405.000000")
	_, inserted, err := s.InsertIfAbsent(ctx, sample(models.SourceSlack, key))
	require.NoError(t, err)
	assert.True(t, inserted)

	_, err = s.SaveRequest(ctx, sample(models.SourceSlack, key))
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}
