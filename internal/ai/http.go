package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/freedom_case_2/crcollector/internal/models"
)

// HTTPAdapter classifies batches through a chat completion model.
type HTTPAdapter struct {
	Chat ChatClient
}

const systemPrompt = `You triage customer feedback collected from Slack, Figma and Confluence.
For every numbered item decide whether it is a customer request, issue or improvement.
Plain information sharing and chit-chat are not requests.
Reply with a JSON object {"results":[{"index":0,"isRequest":true,"category":"bug|improvement|new_feature|inquiry|other","priority":"urgent|high|medium|low","summary":"one line, at most 50 characters"}]} with one entry per item.`

func (h HTTPAdapter) ClassifyBatch(ctx context.Context, items []models.ClassifyItem) ([]models.Verdict, int64, error) {
	start := time.Now()
	if len(items) == 0 {
		return nil, 0, nil
	}

	content, err := h.Chat.CompleteJSON(ctx, []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildBatchPrompt(items)},
	})
	if err != nil {
		return nil, time.Since(start).Milliseconds(), err
	}

	verdicts, err := ParseVerdicts(content, len(items))
	return verdicts, time.Since(start).Milliseconds(), err
}

func BuildBatchPrompt(items []models.ClassifyItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%d]\n", i)
		if it.Context != "" {
			fmt.Fprintf(&b, "context: %s\n", it.Context)
		}
		fmt.Fprintf(&b, "author: %s\n", it.Author)
		fmt.Fprintf(&b, "text: %s\n", it.Text)
	}
	return b.String()
}

// ParseVerdicts decodes the model reply and drops entries that point outside
// the submitted batch.
func ParseVerdicts(content string, n int) ([]models.Verdict, error) {
	var res struct {
		Results []models.Verdict `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, fmt.Errorf("malformed verdicts: %w", err)
	}
	if len(res.Results) == 0 {
		return nil, ErrEmptyResponse
	}
	out := make([]models.Verdict, 0, len(res.Results))
	for _, v := range res.Results {
		if v.Index < 0 || v.Index >= n {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
