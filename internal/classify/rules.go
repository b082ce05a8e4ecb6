package classify

import (
	"context"
	"strings"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/utils"
)

// Keywords are matched as case-insensitive substrings.
type Keywords struct {
	Request       []string
	Urgent        []string
	High          []string
	Low           []string
	Bug           []string
	Improvement   []string
	Feature       []string
	Inquiry       []string
	ClientAuthors []string
}

func KeywordsFromConfig(cfg config.Config) Keywords {
	return Keywords{
		Request:       config.SplitList(cfg.RequestKeywords),
		Urgent:        config.SplitList(cfg.UrgentKeywords),
		High:          config.SplitList(cfg.HighKeywords),
		Low:           config.SplitList(cfg.LowKeywords),
		Bug:           config.SplitList(cfg.BugKeywords),
		Improvement:   config.SplitList(cfg.ImprovementKeywords),
		Feature:       config.SplitList(cfg.FeatureKeywords),
		Inquiry:       config.SplitList(cfg.InquiryKeywords),
		ClientAuthors: config.SplitList(cfg.ClientAuthors),
	}
}

type Rules struct {
	kw Keywords
}

func NewRules(kw Keywords) *Rules {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return &Rules{kw: Keywords{
		Request:       lower(kw.Request),
		Urgent:        lower(kw.Urgent),
		High:          lower(kw.High),
		Low:           lower(kw.Low),
		Bug:           lower(kw.Bug),
		Improvement:   lower(kw.Improvement),
		Feature:       lower(kw.Feature),
		Inquiry:       lower(kw.Inquiry),
		ClientAuthors: lower(kw.ClientAuthors),
	}}
}

func containsAny(lowerText string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lowerText, k) {
			return true
		}
	}
	return false
}

// IsClientAuthor reports whether author matches a configured external identity.
func (r *Rules) IsClientAuthor(author string) bool {
	if author == "" {
		return false
	}
	return containsAny(strings.ToLower(author), r.kw.ClientAuthors)
}

// IsRequest is the cheap pre-classification filter.
func (r *Rules) IsRequest(text, author string) bool {
	if r.IsClientAuthor(author) {
		return true
	}
	return containsAny(strings.ToLower(text), r.kw.Request)
}

// Priority checks urgent terms first; bug-like text never drops below high.
func (r *Rules) Priority(text string) models.Priority {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, r.kw.Urgent):
		return models.PriorityUrgent
	case containsAny(t, r.kw.Bug):
		return models.PriorityHigh
	case containsAny(t, r.kw.High):
		return models.PriorityHigh
	case containsAny(t, r.kw.Low):
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

func (r *Rules) Category(text string) models.Category {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, r.kw.Bug):
		return models.CategoryBug
	case containsAny(t, r.kw.Improvement):
		return models.CategoryImprovement
	case containsAny(t, r.kw.Feature):
		return models.CategoryNewFeature
	case containsAny(t, r.kw.Inquiry):
		return models.CategoryInquiry
	default:
		return models.CategoryOther
	}
}

func (r *Rules) Classify(_ context.Context, item models.ClassifyItem) models.Classification {
	return models.Classification{
		IsRequest: r.IsRequest(item.Text, item.Author),
		Category:  r.Category(item.Text),
		Priority:  r.Priority(item.Text),
		Title:     utils.Title(item.Text),
	}
}

func (r *Rules) ClassifyBatch(ctx context.Context, items []models.ClassifyItem) []models.Classification {
	out := make([]models.Classification, len(items))
	for i, it := range items {
		out[i] = r.Classify(ctx, it)
	}
	return out
}
