package classify

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/ai"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/utils"
)

// ModelClassifier refines batches with a language model. Whenever the model
// call fails, every item of the affected batch is classified by the rules.
type ModelClassifier struct {
	Adapter   ai.Adapter
	Fallback  *Rules
	BatchSize int
	Logger    zerolog.Logger
}

func (m *ModelClassifier) Classify(ctx context.Context, item models.ClassifyItem) models.Classification {
	return m.ClassifyBatch(ctx, []models.ClassifyItem{item})[0]
}

func (m *ModelClassifier) ClassifyBatch(ctx context.Context, items []models.ClassifyItem) []models.Classification {
	out := make([]models.Classification, len(items))
	size := m.BatchSize
	if size <= 0 {
		size = 20
	}
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		copy(out[start:end], m.classifyChunk(ctx, items[start:end]))
	}
	return out
}

func (m *ModelClassifier) classifyChunk(ctx context.Context, items []models.ClassifyItem) []models.Classification {
	fallback := m.Fallback.ClassifyBatch(ctx, items)
	if m.Adapter == nil {
		return fallback
	}

	verdicts, latencyMs, err := m.Adapter.ClassifyBatch(ctx, items)
	if err != nil {
		m.Logger.Warn().Err(err).Int("items", len(items)).Msg("model classification failed, using rules")
		return fallback
	}
	m.Logger.Debug().Int("items", len(items)).Int("verdicts", len(verdicts)).Int64("latency_ms", latencyMs).Msg("model classification")

	out := fallback
	for _, v := range verdicts {
		if v.Index < 0 || v.Index >= len(items) {
			continue
		}
		c, ok := fromVerdict(v, fallback[v.Index])
		if !ok {
			continue
		}
		out[v.Index] = c
	}
	return out
}

func fromVerdict(v models.Verdict, rules models.Classification) (models.Classification, bool) {
	cat, err := models.ParseCategory(v.Category)
	if err != nil {
		return models.Classification{}, false
	}
	pri, err := models.ParsePriority(v.Priority)
	if err != nil {
		return models.Classification{}, false
	}
	title := strings.TrimSpace(v.Summary)
	if title == "" {
		title = rules.Title
	} else {
		title = utils.Title(title)
	}
	return models.Classification{
		IsRequest: v.IsRequest,
		Category:  cat,
		Priority:  pri,
		Title:     title,
	}, true
}
