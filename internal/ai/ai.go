package ai

import (
	"context"

	"github.com/freedom_case_2/crcollector/internal/models"
)

// Adapter classifies a batch of items with a language model. The returned
// verdicts reference items by their position in the input slice.
type Adapter interface {
	ClassifyBatch(ctx context.Context, items []models.ClassifyItem) ([]models.Verdict, int64, error)
}
