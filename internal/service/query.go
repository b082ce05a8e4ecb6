package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/cache"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
)

const (
	DefaultListDays  = 7
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// QueryService serves the read side: lists, summaries and status updates.
type QueryService struct {
	Store    db.Store
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   zerolog.Logger

	// InternalAuthors mark replies from the team; ClientAuthors are echoed in digests.
	InternalAuthors []string
	ClientAuthors   []string

	now func() time.Time
}

type ListQuery struct {
	Project  string
	Days     int
	Source   string
	Status   string
	Priority string
	Limit    int
	Offset   int
}

type Summary struct {
	Total      int            `json:"total"`
	Days       int            `json:"days"`
	BySource   map[string]int `json:"by_source"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
	ByStatus   map[string]int `json:"by_status"`
}

func (s *QueryService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// filter validates the enum fields and turns Days into a Since bound.
func (s *QueryService) filter(q ListQuery) (db.ListFilter, ListQuery, error) {
	if q.Days <= 0 {
		q.Days = DefaultListDays
	}
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	f := db.ListFilter{
		Project: q.Project,
		Since:   s.clock().AddDate(0, 0, -q.Days),
		Limit:   q.Limit,
		Offset:  q.Offset,
	}
	if q.Source != "" {
		src, err := models.ParseSource(q.Source)
		if err != nil {
			return f, q, fmt.Errorf("%w: %v", db.ErrInvalidInput, err)
		}
		f.Source, q.Source = src, string(src)
	}
	if q.Status != "" {
		st, err := models.ParseStatus(q.Status)
		if err != nil {
			return f, q, fmt.Errorf("%w: %v", db.ErrInvalidInput, err)
		}
		f.Status, q.Status = st, string(st)
	}
	if q.Priority != "" {
		p, err := models.ParsePriority(q.Priority)
		if err != nil {
			return f, q, fmt.Errorf("%w: %v", db.ErrInvalidInput, err)
		}
		f.Priority, q.Priority = p, string(p)
	}
	return f, q, nil
}

func (s *QueryService) cacheKey(q ListQuery) string {
	return cache.Key(q.Project, q.Days, q.Source, q.Status, q.Priority, fmt.Sprintf("%d-%d", q.Offset, q.Limit))
}

func (s *QueryService) ListRequests(ctx context.Context, q ListQuery) ([]models.Request, error) {
	f, q, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	key := s.cacheKey(q)
	if s.Cache != nil {
		var cached []models.Request
		hit, err := s.Cache.Get(ctx, key, &cached)
		if err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	out, err := s.Store.ListRequests(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Request{}
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, out, s.CacheTTL); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return out, nil
}

// SummaryStats counts every matching request, ignoring Limit and Offset.
func (s *QueryService) SummaryStats(ctx context.Context, q ListQuery) (Summary, error) {
	f, q, err := s.filter(q)
	if err != nil {
		return Summary{}, err
	}
	f.Limit, f.Offset = 0, 0
	rs, err := s.Store.ListRequests(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Total:      len(rs),
		Days:       q.Days,
		BySource:   map[string]int{},
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
		ByStatus:   map[string]int{},
	}
	for _, r := range rs {
		sum.BySource[string(r.Source)]++
		sum.ByPriority[string(r.Priority)]++
		sum.ByCategory[string(r.Category)]++
		sum.ByStatus[string(r.Status)]++
	}
	return sum, nil
}

func (s *QueryService) GetRequest(ctx context.Context, cr string) (models.Request, error) {
	return s.Store.GetByCRNumber(ctx, cr)
}

// UpdateStatus changes a request's status and drops cached lists. An unknown
// CR number is reported as ErrNotFound.
func (s *QueryService) UpdateStatus(ctx context.Context, cr string, status models.Status, assignee string) (models.Request, error) {
	if _, err := s.Store.GetByCRNumber(ctx, cr); err != nil {
		return models.Request{}, err
	}
	if err := s.Store.UpdateStatus(ctx, cr, status, assignee); err != nil {
		return models.Request{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx); err != nil {
			s.Logger.Warn().Err(err).Msg("cache invalidate failed")
		}
	}
	return s.Store.GetByCRNumber(ctx, cr)
}

func (s *QueryService) LatestRun(ctx context.Context) (models.RunResult, error) {
	return s.Store.LatestRun(ctx)
}
