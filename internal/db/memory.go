package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/freedom_case_2/crcollector/internal/models"
)

// MemoryStore keeps everything in process memory. The CR sequence restarts
// with the process, so numbers can repeat across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	requests []models.Request
	byKey    map[models.NaturalKey]int
	byCR     map[string]int
	seq      map[string]int
	reports  map[string]models.DailyReport
	runs     []models.RunResult

	loc *time.Location
	now func() time.Time
}

func NewMemoryStore(loc *time.Location) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{
		byKey:   make(map[models.NaturalKey]int),
		byCR:    make(map[string]int),
		seq:     make(map[string]int),
		reports: make(map[string]models.DailyReport),
		loc:     loc,
		now:     time.Now,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) SaveRequest(ctx context.Context, r models.Request) (models.Request, error) {
	saved, inserted, err := s.InsertIfAbsent(ctx, r)
	if err != nil {
		return models.Request{}, err
	}
	if !inserted {
		return models.Request{}, fmt.Errorf("request %s/%s: %w", r.Source, r.SourceID, ErrAlreadyExists)
	}
	return saved, nil
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, r models.Request) (models.Request, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Request{}, false, err
	}
	now := s.now()
	r, err := prepare(r, now)
	if err != nil {
		return models.Request{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byKey[r.Key()]; ok {
		return s.requests[idx], false, nil
	}
	prefix := crPrefix(now, s.loc)
	s.seq[prefix]++
	r.CRNumber = formatCR(prefix, s.seq[prefix])
	r.Attachments = append([]string(nil), r.Attachments...)

	s.requests = append(s.requests, r)
	idx := len(s.requests) - 1
	s.byKey[r.Key()] = idx
	s.byCR[r.CRNumber] = idx
	return r, true, nil
}

func (s *MemoryStore) IsDuplicate(ctx context.Context, sourceID string, source models.Source) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[models.NaturalKey{Source: source, SourceID: sourceID}]
	return ok, nil
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]models.Request, error) {
	return s.ListRequests(ctx, ListFilter{})
}

func (s *MemoryStore) GetByDateWindow(ctx context.Context, start, end time.Time) ([]models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Request{}
	for _, r := range s.requests {
		if r.RequestedAt.Before(start) || r.RequestedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	sortRequests(out)
	return out, nil
}

func (s *MemoryStore) GetByCRNumber(ctx context.Context, cr string) (models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byCR[cr]
	if !ok {
		return models.Request{}, fmt.Errorf("request %s: %w", cr, ErrNotFound)
	}
	return s.requests[idx], nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, cr string, status models.Status, assignee string) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byCR[cr]
	if !ok {
		return nil
	}
	r := &s.requests[idx]
	r.Status = status
	if assignee != "" {
		r.Assignee = assignee
	}
	r.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ListRequests(ctx context.Context, f ListFilter) ([]models.Request, error) {
	s.mu.RLock()
	out := []models.Request{}
	for _, r := range s.requests {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sortRequests(out)
	return page(out, f.Limit, f.Offset), nil
}

func (s *MemoryStore) SaveDailyReport(ctx context.Context, rep models.DailyReport) (models.DailyReport, error) {
	rep = prepareReport(rep, s.now())
	s.mu.Lock()
	s.reports[rep.ID] = rep
	s.mu.Unlock()
	return rep, nil
}

func (s *MemoryStore) RecordRun(ctx context.Context, run models.RunResult) error {
	if run.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LatestRun(ctx context.Context) (models.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return models.RunResult{}, fmt.Errorf("collection run: %w", ErrNotFound)
	}
	latest := s.runs[0]
	for _, run := range s.runs[1:] {
		if !run.StartedAt.Before(latest.StartedAt) {
			latest = run
		}
	}
	return latest, nil
}
