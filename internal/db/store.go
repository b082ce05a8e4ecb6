package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// Store persists collected customer requests, daily reports and run history.
type Store interface {
	// SaveRequest inserts a new request. A natural key collision returns ErrAlreadyExists.
	SaveRequest(ctx context.Context, r models.Request) (models.Request, error)
	// InsertIfAbsent inserts r unless (source, source_id) is already stored.
	InsertIfAbsent(ctx context.Context, r models.Request) (models.Request, bool, error)
	IsDuplicate(ctx context.Context, sourceID string, source models.Source) (bool, error)
	GetAll(ctx context.Context) ([]models.Request, error)
	GetByDateWindow(ctx context.Context, start, end time.Time) ([]models.Request, error)
	GetByCRNumber(ctx context.Context, cr string) (models.Request, error)
	UpdateStatus(ctx context.Context, cr string, status models.Status, assignee string) error
	ListRequests(ctx context.Context, f ListFilter) ([]models.Request, error)
	SaveDailyReport(ctx context.Context, rep models.DailyReport) (models.DailyReport, error)
	RecordRun(ctx context.Context, run models.RunResult) error
	LatestRun(ctx context.Context) (models.RunResult, error)
	Ping(ctx context.Context) error
	Close()
}

type ListFilter struct {
	Project  string
	Source   models.Source
	Status   models.Status
	Priority models.Priority
	Since    time.Time
	Limit    int
	Offset   int
}

// Open builds the store selected by STORE_DRIVER.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	switch driver := cfg.ResolvedStoreDriver(); driver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrInvalidInput)
		}
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPGStore(pool, loc), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, loc)
	case "memory":
		return NewMemoryStore(loc), nil
	default:
		return nil, fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidInput, driver)
	}
}

func crPrefix(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return "CR-" + t.In(loc).Format("20060102") + "-"
}

func formatCR(prefix string, seq int) string {
	return fmt.Sprintf("%s%03d", prefix, seq)
}

// prepare fills the fields every backend assigns on insert.
func prepare(r models.Request, now time.Time) (models.Request, error) {
	if _, err := models.ParseSource(string(r.Source)); err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(r.SourceID) == "" {
		return r, fmt.Errorf("%w: source_id is required", ErrInvalidInput)
	}
	now = now.UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.StatusNew
	}
	if r.RequesterName == "" {
		r.RequesterName = "Unknown"
	}
	if r.Category == "" {
		r.Category = models.CategoryOther
	}
	if r.Priority == "" {
		r.Priority = models.PriorityMedium
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = now
	}
	r.RequestedAt = r.RequestedAt.UTC()
	r.CollectedAt = now
	r.UpdatedAt = now
	return r, nil
}

func validateStatus(status models.Status) error {
	if _, err := models.ParseStatus(string(status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// sortRequests orders by priority rank, then most recently collected.
func sortRequests(rs []models.Request) {
	sort.SliceStable(rs, func(i, j int) bool {
		ri, rj := rs[i].Priority.Rank(), rs[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return rs[i].CollectedAt.After(rs[j].CollectedAt)
	})
}

func matches(r models.Request, f ListFilter) bool {
	if f.Project != "" && r.Project != f.Project {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if !f.Since.IsZero() && r.RequestedAt.Before(f.Since) {
		return false
	}
	return true
}

func page(rs []models.Request, limit, offset int) []models.Request {
	if offset > 0 {
		if offset >= len(rs) {
			return []models.Request{}
		}
		rs = rs[offset:]
	}
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	return rs
}

func prepareReport(rep models.DailyReport, now time.Time) models.DailyReport {
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	if rep.GeneratedAt.IsZero() {
		rep.GeneratedAt = now.UTC()
	}
	return rep
}
