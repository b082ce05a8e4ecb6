package service

import (
	"context"
	"strings"
	"time"

	"github.com/freedom_case_2/crcollector/internal/models"
)

// AttentionAfterDays is the age past which an urgent or high request needs
// immediate attention.
const AttentionAfterDays = 3

// LLMView is a compact digest of the current requests for language model
// consumers, split into open work and items answered by the internal team.
type LLMView struct {
	Summary    LLMSummary      `json:"summary"`
	Unresolved []PriorityGroup `json:"unresolved_requests"`
	Resolved   []ResolvedItem  `json:"resolved_requests"`
	Context    LLMContext      `json:"context"`
}

type LLMSummary struct {
	Total                      int `json:"total"`
	Unresolved                 int `json:"unresolved"`
	Resolved                   int `json:"resolved"`
	Urgent                     int `json:"urgent"`
	High                       int `json:"high"`
	RequiresImmediateAttention int `json:"requires_immediate_attention"`
}

type PriorityGroup struct {
	Priority models.Priority `json:"priority"`
	Items    []OpenItem      `json:"items"`
}

type OpenItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Requester   string          `json:"requester"`
	Source      models.Source   `json:"source"`
	Category    models.Category `json:"category"`
	DaysElapsed int             `json:"days_elapsed"`
	RequestedAt time.Time       `json:"requested_at"`
}

type ResolvedItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Resolver    string          `json:"resolver"`
	Source      models.Source   `json:"source"`
	Category    models.Category `json:"category"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

type LLMContext struct {
	CollectionTime  time.Time       `json:"collection_time"`
	Days            int             `json:"days"`
	Sources         []models.Source `json:"sources"`
	ClientAuthors   []string        `json:"client_authors"`
	InternalAuthors []string        `json:"internal_authors"`
}

// answeredInternally reports whether r was written by one of the internal
// authors. Bugs and feature requests stay open whoever wrote them.
func answeredInternally(internal []string, r models.Request) bool {
	if r.Category == models.CategoryBug || r.Category == models.CategoryNewFeature {
		return false
	}
	name := strings.ToLower(r.RequesterName)
	if name == "" {
		return false
	}
	for _, a := range internal {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && strings.Contains(name, a) {
			return true
		}
	}
	return false
}

// LLMView ignores Limit and Offset: the digest always covers the whole window.
func (s *QueryService) LLMView(ctx context.Context, q ListQuery) (LLMView, error) {
	f, q, err := s.filter(q)
	if err != nil {
		return LLMView{}, err
	}
	f.Limit, f.Offset = 0, 0
	rs, err := s.Store.ListRequests(ctx, f)
	if err != nil {
		return LLMView{}, err
	}

	now := s.clock()
	groups := make(map[models.Priority][]OpenItem, len(models.Priorities))
	view := LLMView{
		Resolved: []ResolvedItem{},
		Context: LLMContext{
			CollectionTime:  now,
			Days:            q.Days,
			Sources:         models.Sources,
			ClientAuthors:   s.ClientAuthors,
			InternalAuthors: s.InternalAuthors,
		},
	}
	for _, r := range rs {
		if answeredInternally(s.InternalAuthors, r) {
			view.Resolved = append(view.Resolved, ResolvedItem{
				ID: r.CRNumber, Title: r.Title, Description: r.Description, Resolver: r.RequesterName,
				Source: r.Source, Category: r.Category, ResolvedAt: r.RequestedAt,
			})
			continue
		}
		days := ElapsedDays(r.RequestedAt, now)
		groups[r.Priority] = append(groups[r.Priority], OpenItem{
			ID: r.CRNumber, Title: r.Title, Description: r.Description, Requester: r.RequesterName,
			Source: r.Source, Category: r.Category, DaysElapsed: days, RequestedAt: r.RequestedAt,
		})
		view.Summary.Unresolved++
		if days > AttentionAfterDays && (r.Priority == models.PriorityUrgent || r.Priority == models.PriorityHigh) {
			view.Summary.RequiresImmediateAttention++
		}
	}

	for _, p := range models.Priorities {
		items := groups[p]
		if items == nil {
			items = []OpenItem{}
		}
		view.Unresolved = append(view.Unresolved, PriorityGroup{Priority: p, Items: items})
	}
	view.Summary.Total = len(rs)
	view.Summary.Resolved = len(view.Resolved)
	view.Summary.Urgent = len(groups[models.PriorityUrgent])
	view.Summary.High = len(groups[models.PriorityHigh])
	return view, nil
}
