// Package collector pulls items from Confluence, Figma and Slack and feeds
// the request-like ones through classification into the store.
package collector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/models"
)

type Collector interface {
	Name() string
	Source() models.Source
	// Configured is false when credentials or targets are missing.
	Configured() bool
	// Collect never fails; provider and persistence errors land in Result.Errors.
	Collect(ctx context.Context, run Run) Result
}

type Run struct {
	Window Window
	Budget Budget
	Logger zerolog.Logger
}

type Result struct {
	Count     int
	Seen      int
	Skipped   int
	Errors    []string
	Truncated bool
}

func (r *Result) errorf(format string, err error) {
	r.Errors = append(r.Errors, format+": "+err.Error())
}

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// DailyWindow covers yesterday hour:00 to today hour:00 in loc. Before
// hour:00 the whole window moves one day back.
func DailyWindow(now time.Time, loc *time.Location, hour int) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if local.Hour() < hour {
		end = end.AddDate(0, 0, -1)
	}
	return Window{Start: end.AddDate(0, 0, -1), End: end}
}

func LookbackWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = 1
	}
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Budget bounds one collector run by wall clock and page fetches.
type Budget struct {
	Deadline time.Time
	MaxPages int
}

func NewBudget(now time.Time, d time.Duration, maxPages int) Budget {
	b := Budget{MaxPages: maxPages}
	if d > 0 {
		b.Deadline = now.Add(d)
	}
	return b
}

// Exhausted is checked before every page fetch.
func (b Budget) Exhausted(pagesUsed int) bool {
	if b.MaxPages > 0 && pagesUsed >= b.MaxPages {
		return true
	}
	return !b.Deadline.IsZero() && !time.Now().Before(b.Deadline)
}

func parseTimestamp(log zerolog.Logger, raw string) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	log.Warn().Str("value", raw).Msg("unparseable timestamp, using now")
	return time.Now()
}

// parseSlackTS reads "1700000001.000200" style message timestamps.
func parseSlackTS(log zerolog.Logger, ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		log.Warn().Str("ts", ts).Msg("unparseable slack ts, using now")
		return time.Now()
	}
	var micros int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, micros*int64(time.Microsecond))
}
