package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freedom_case_2/crcollector/internal/cache"
	"github.com/freedom_case_2/crcollector/internal/collector"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
)

// CollectionService runs the configured collectors for one pass.
type CollectionService struct {
	Store        db.Store
	Cache        cache.Cache
	Collectors   []collector.Collector
	Location     *time.Location
	CollectHour  int
	LookbackDays int
	Budget       time.Duration
	MaxPages     int
	Concurrency  int
	Logger       zerolog.Logger

	now func() time.Time
}

func (s *CollectionService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Sources lists collector names with their configuration state.
func (s *CollectionService) Sources() []SourceInfo {
	out := make([]SourceInfo, 0, len(s.Collectors))
	for _, c := range s.Collectors {
		out = append(out, SourceInfo{Name: c.Name(), Source: c.Source(), Configured: c.Configured()})
	}
	return out
}

type SourceInfo struct {
	Name       string        `json:"name"`
	Source     models.Source `json:"source"`
	Configured bool          `json:"configured"`
}

// Window is the default window for a run started now.
func (s *CollectionService) Window(days int) collector.Window {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now := s.clock().In(loc)
	if days <= 0 {
		days = s.LookbackDays
	}
	if days > 0 {
		return collector.LookbackWindow(now, days)
	}
	return collector.DailyWindow(now, loc, s.CollectHour)
}

func (s *CollectionService) RunCollection(ctx context.Context, trigger models.Trigger, enabled []string) models.RunResult {
	return s.RunCollectionWindow(ctx, trigger, enabled, s.Window(0))
}

// RunCollectionWindow never fails as a whole: every attempted source reports a
// count, and failures are listed per source.
func (s *CollectionService) RunCollectionWindow(ctx context.Context, trigger models.Trigger, enabled []string, window collector.Window) models.RunResult {
	started := s.clock()
	result := models.RunResult{
		RunID:           uuid.NewString(),
		Trigger:         trigger,
		StartedAt:       started,
		PerSourceCounts: map[string]int{},
		PerSourceErrors: map[string][]string{},
	}
	log := s.Logger.With().Str("run_id", result.RunID).Str("trigger", string(trigger)).Logger()
	log.Info().Time("window_start", window.Start).Time("window_end", window.End).Strs("enabled", enabled).Msg("collection started")

	run := collector.Run{
		Window: window,
		Budget: collector.NewBudget(started, s.Budget, s.MaxPages),
		Logger: log,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, name := range s.UnknownSources(enabled) {
		result.Skipped = append(result.Skipped, "unknown:"+name)
		log.Warn().Str("collector", name).Msg("no collector matches name, skipped")
	}
	for _, c := range s.Collectors {
		if !selected(c, enabled) {
			continue
		}
		source := string(c.Source())
		if !c.Configured() {
			mu.Lock()
			result.PerSourceCounts[source] += 0
			result.Skipped = append(result.Skipped, c.Name())
			mu.Unlock()
			log.Info().Str("collector", c.Name()).Msg("collector not configured, skipped")
			continue
		}
		c := c
		g.Go(func() error {
			res := c.Collect(gctx, run)
			mu.Lock()
			defer mu.Unlock()
			result.PerSourceCounts[source] += res.Count
			for _, e := range res.Errors {
				result.PerSourceErrors[source] = append(result.PerSourceErrors[source], c.Name()+": "+e)
			}
			if res.Truncated {
				result.Truncated = append(result.Truncated, c.Name())
			}
			return nil
		})
	}
	_ = g.Wait()

	result.FinishedAt = s.clock()
	result.TotalDurationMs = result.FinishedAt.Sub(started).Milliseconds()

	if err := s.Store.RecordRun(ctx, result); err != nil {
		log.Error().Err(err).Msg("record run failed")
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("cache invalidate failed")
		}
	}
	log.Info().
		Int("total", result.Total()).
		Int64("duration_ms", result.TotalDurationMs).
		Strs("skipped", result.Skipped).
		Strs("truncated", result.Truncated).
		Msg("collection finished")
	return result
}

// UnknownSources returns the requested names that match no collector.
func (s *CollectionService) UnknownSources(enabled []string) []string {
	var unknown []string
	for _, e := range enabled {
		if strings.TrimSpace(e) == "" {
			continue
		}
		hit := false
		for _, c := range s.Collectors {
			if selected(c, []string{e}) {
				hit = true
				break
			}
		}
		if !hit {
			unknown = append(unknown, strings.TrimSpace(e))
		}
	}
	return unknown
}

// selected matches a collector by full name, name family ("confluence-pages")
// or source ("confluence"). An empty list selects everything.
func selected(c collector.Collector, enabled []string) bool {
	if len(enabled) == 0 {
		return true
	}
	family, _, _ := strings.Cut(c.Name(), ":")
	for _, e := range enabled {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == c.Name() || e == family || e == string(c.Source()) {
			return true
		}
	}
	return false
}

// Scheduler triggers a scheduled run every day at Hour in the service location.
type Scheduler struct {
	Service  *CollectionService
	Hour     int
	AfterRun func(ctx context.Context, res models.RunResult)
	Logger   zerolog.Logger
}

func (sc *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			wait := sc.untilNext(time.Now())
			sc.Logger.Info().Dur("in", wait).Msg("next scheduled collection")
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			res := sc.Service.RunCollection(ctx, models.TriggerScheduled, nil)
			if sc.AfterRun != nil {
				sc.AfterRun(ctx, res)
			}
		}
	}()
}

func (sc *Scheduler) untilNext(now time.Time) time.Duration {
	loc := sc.Service.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), sc.Hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}
