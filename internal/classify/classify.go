// Package classify assigns category, priority and title to collected text.
package classify

import (
	"context"

	"github.com/freedom_case_2/crcollector/internal/models"
)

type Classifier interface {
	Classify(ctx context.Context, item models.ClassifyItem) models.Classification
	ClassifyBatch(ctx context.Context, items []models.ClassifyItem) []models.Classification
}
