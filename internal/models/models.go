package models

import (
	"fmt"
	"strings"
	"time"
)

type Source string

const (
	SourceSlack      Source = "slack"
	SourceFigma      Source = "figma"
	SourceConfluence Source = "confluence"
)

type Category string

const (
	CategoryBug           Category = "bug"
	CategoryImprovement   Category = "improvement"
	CategoryNewFeature    Category = "new_feature"
	CategoryInquiry       Category = "inquiry"
	CategoryDocumentation Category = "documentation"
	CategoryComment       Category = "comment"
	CategoryOther         Category = "other"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for sorting; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

type Status string

const (
	StatusNew        Status = "new"
	StatusReviewing  Status = "reviewing"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

var (
	Sources    = []Source{SourceSlack, SourceFigma, SourceConfluence}
	Categories = []Category{CategoryBug, CategoryImprovement, CategoryNewFeature, CategoryInquiry, CategoryDocumentation, CategoryComment, CategoryOther}
	Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}
	Statuses   = []Status{StatusNew, StatusReviewing, StatusAccepted, StatusInProgress, StatusCompleted, StatusRejected}
)

func ParseSource(v string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Sources {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", v)
}

func ParseCategory(v string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", v)
}

func ParsePriority(v string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", v)
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// Request is a customer request collected from one provider item.
type Request struct {
	ID             string    `json:"id"`
	CRNumber       string    `json:"cr_number"`
	Source         Source    `json:"source"`
	SourceID       string    `json:"source_id"`
	Project        string    `json:"project,omitempty"`
	RequesterID    string    `json:"requester_id"`
	RequesterName  string    `json:"requester_name"`
	RequesterEmail string    `json:"requester_email,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       Category  `json:"category"`
	Priority       Priority  `json:"priority"`
	ChannelID      string    `json:"channel_id,omitempty"`
	ChannelName    string    `json:"channel_name,omitempty"`
	ThreadTS       string    `json:"thread_ts,omitempty"`
	OriginalURL    string    `json:"original_url,omitempty"`
	Attachments    []string  `json:"attachments,omitempty"`
	Status         Status    `json:"status"`
	Assignee       string    `json:"assignee,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
	CollectedAt    time.Time `json:"collected_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type NaturalKey struct {
	Source   Source
	SourceID string
}

func (r Request) Key() NaturalKey {
	return NaturalKey{Source: r.Source, SourceID: r.SourceID}
}

type DailyReport struct {
	ID              string         `json:"id"`
	ReportDate      time.Time      `json:"report_date"`
	WindowStart     time.Time      `json:"window_start"`
	WindowEnd       time.Time      `json:"window_end"`
	TotalRequests   int            `json:"total_requests"`
	ByCategory      map[string]int `json:"by_category"`
	ByPriority      map[string]int `json:"by_priority"`
	BySource        map[string]int `json:"by_source"`
	Requests        []Request      `json:"requests"`
	GeneratedAt     time.Time      `json:"generated_at"`
	PostedChannelID string         `json:"posted_channel_id,omitempty"`
	PostedMessageTS string         `json:"posted_message_ts,omitempty"`
	ExportedFile    string         `json:"exported_file,omitempty"`
}

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerOnDemand  Trigger = "on_demand"
)

type RunResult struct {
	RunID           string              `json:"run_id"`
	Trigger         Trigger             `json:"trigger"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
	PerSourceCounts map[string]int      `json:"per_source_counts"`
	PerSourceErrors map[string][]string `json:"per_source_errors"`
	Skipped         []string            `json:"skipped,omitempty"`
	Truncated       []string            `json:"truncated,omitempty"`
	TotalDurationMs int64               `json:"total_duration_ms"`
}

// Total sums the per-source counts.
func (r RunResult) Total() int {
	n := 0
	for _, c := range r.PerSourceCounts {
		n += c
	}
	return n
}

type ClassifyItem struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Author  string `json:"author"`
	Context string `json:"context"`
}

type Classification struct {
	IsRequest bool     `json:"is_request"`
	Category  Category `json:"category"`
	Priority  Priority `json:"priority"`
	Title     string   `json:"title"`
}

// Verdict is one entry of a language-model batch response.
type Verdict struct {
	Index     int    `json:"index"`
	IsRequest bool   `json:"isRequest"`
	Category  string `json:"category"`
	Priority  string `json:"priority"`
	Summary   string `json:"summary"`
}
