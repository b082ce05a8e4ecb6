package collector

import (
	"context"

	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/figma"
)

// FigmaCollector reads the comments of each configured file. Replies are
// collected as items of their own; a resolved thread drops all its replies.
type FigmaCollector struct {
	Client          *figma.Client
	FileKeys        []string
	Project         string
	IncludeResolved bool
	MaxComments     int
	Sink            *Sink
}

func (c *FigmaCollector) Name() string { return "figma" }

func (c *FigmaCollector) Source() models.Source { return models.SourceFigma }

func (c *FigmaCollector) Configured() bool {
	return c.Client != nil && c.Client.Token != "" && len(c.FileKeys) > 0
}

func (c *FigmaCollector) Collect(ctx context.Context, run Run) Result {
	var res Result
	log := run.Logger.With().Str("collector", c.Name()).Logger()
	maxComments := c.MaxComments
	if maxComments <= 0 {
		maxComments = 50
	}

	fetches := 0
	for _, key := range c.FileKeys {
		if run.Budget.Exhausted(fetches) {
			res.Truncated = true
			break
		}
		fetches++
		comments, err := c.Client.Comments(ctx, key)
		if err != nil {
			res.errorf("figma comments "+key, err)
			continue
		}
		fileName := key
		if file, err := c.Client.File(ctx, key); err != nil {
			log.Warn().Err(err).Str("file_key", key).Msg("figma file lookup failed")
		} else if file.Name != "" {
			fileName = file.Name
		}

		resolved := make(map[string]bool)
		for _, cm := range comments {
			if cm.Resolved() {
				resolved[cm.ID] = true
			}
		}

		if len(comments) > maxComments {
			comments = comments[:maxComments]
		}
		cands := make([]Candidate, 0, len(comments))
		for _, cm := range comments {
			if !c.IncludeResolved && (resolved[cm.ID] || resolved[cm.ParentID]) {
				res.Skipped++
				continue
			}
			created := parseTimestamp(log, cm.CreatedAt)
			if !run.Window.Contains(created) {
				continue
			}
			cands = append(cands, Candidate{
				Request: models.Request{
					Source:         models.SourceFigma,
					SourceID:       cm.ID,
					Project:        c.Project,
					RequesterID:    cm.User.ID,
					RequesterName:  cm.User.Handle,
					RequesterEmail: cm.User.Email,
					Description:    cm.Message,
					ChannelID:      key,
					ChannelName:    "Figma: " + fileName,
					ThreadTS:       cm.ParentID,
					OriginalURL:    figma.CommentURL(key, fileName, cm),
					RequestedAt:    created,
				},
				Text:    cm.Message,
				Author:  cm.User.Handle,
				Context: "Figma file " + fileName,
			})
		}
		c.Sink.Submit(ctx, run, cands, &res)
		log.Debug().Str("file", fileName).Int("comments", len(comments)).Msg("figma file processed")
	}
	log.Info().Int("count", res.Count).Int("seen", res.Seen).Int("skipped", res.Skipped).Msg("figma comments collected")
	return res
}
