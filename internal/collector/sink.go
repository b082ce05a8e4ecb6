package collector

import (
	"context"

	"github.com/freedom_case_2/crcollector/internal/classify"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
)

// Candidate is one provider item already mapped onto the request shape.
type Candidate struct {
	Request models.Request
	Text    string
	Author  string
	Context string
	// ContentCategory replaces a semantic "other" for page and comment items.
	ContentCategory models.Category
}

// Sink is the per-item path shared by every collector:
// request filter, duplicate check, batch classification, insert-if-absent.
type Sink struct {
	Store      db.Store
	Classifier classify.Classifier
	Rules      *classify.Rules
}

func (s *Sink) Submit(ctx context.Context, run Run, cands []Candidate, res *Result) {
	pending := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		res.Seen++
		if !s.Rules.IsRequest(c.Text, c.Author) {
			res.Skipped++
			continue
		}
		dup, err := s.Store.IsDuplicate(ctx, c.Request.SourceID, c.Request.Source)
		if err != nil {
			res.errorf("duplicate check "+c.Request.SourceID, err)
			continue
		}
		if dup {
			continue
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return
	}

	items := make([]models.ClassifyItem, len(pending))
	for i, c := range pending {
		items[i] = models.ClassifyItem{ID: c.Request.SourceID, Text: c.Text, Author: c.Author, Context: c.Context}
	}
	verdicts := s.Classifier.ClassifyBatch(ctx, items)

	for i, c := range pending {
		v := verdicts[i]
		if !v.IsRequest {
			res.Skipped++
			continue
		}
		r := c.Request
		r.Title = v.Title
		r.Category = v.Category
		r.Priority = v.Priority
		if r.Category == models.CategoryOther && c.ContentCategory != "" {
			r.Category = c.ContentCategory
		}
		if r.RequesterName == "" {
			r.RequesterName = "Unknown"
		}

		saved, inserted, err := s.Store.InsertIfAbsent(ctx, r)
		if err != nil {
			res.errorf("save "+string(r.Source)+"/"+r.SourceID, err)
			continue
		}
		if inserted {
			res.Count++
			run.Logger.Debug().Str("cr", saved.CRNumber).Str("source_id", saved.SourceID).
				Str("category", string(saved.Category)).Str("priority", string(saved.Priority)).Msg("request stored")
		}
	}
}
