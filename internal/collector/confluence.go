package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/confluence"
	"github.com/freedom_case_2/crcollector/internal/utils"
)

const (
	confluencePageLimit   = 25
	pageDescriptionRunes  = 1000
	confluenceCQLTimeForm = "2006-01-02 15:04"
)

// ConfluencePageCollector turns pages modified inside the window into requests.
type ConfluencePageCollector struct {
	Site   config.ConfluenceSite
	Client *confluence.Client
	Sink   *Sink
}

func (c *ConfluencePageCollector) Name() string {
	return "confluence-pages:" + c.Site.Project
}

func (c *ConfluencePageCollector) Source() models.Source { return models.SourceConfluence }

func (c *ConfluencePageCollector) Configured() bool {
	return c.Client != nil && c.Site.Domain != "" && c.Client.Email != "" && c.Client.APIToken != ""
}

func (c *ConfluencePageCollector) Collect(ctx context.Context, run Run) Result {
	var res Result
	log := run.Logger.With().Str("collector", c.Name()).Logger()
	cql := pageCQL(run.Window.Start, run.Window.End, c.Site.Spaces)

	pages := 0
	for start := 0; ; start += confluencePageLimit {
		if run.Budget.Exhausted(pages) {
			res.Truncated = true
			log.Warn().Int("pages", pages).Msg("budget exhausted")
			break
		}
		pages++
		page, err := c.Client.Search(ctx, cql, "body.storage,history,version,space", start, confluencePageLimit)
		if err != nil {
			res.errorf(fmt.Sprintf("confluence %s page search start=%d", c.Site.Project, start), err)
			break
		}

		cands := make([]Candidate, 0, len(page.Results))
		for _, p := range page.Results {
			cands = append(cands, c.candidate(log, p))
		}
		c.Sink.Submit(ctx, run, cands, &res)

		if !page.HasMore() {
			break
		}
	}
	log.Info().Int("count", res.Count).Int("seen", res.Seen).Int("errors", len(res.Errors)).Msg("confluence pages collected")
	return res
}

func (c *ConfluencePageCollector) candidate(log zerolog.Logger, p confluence.Content) Candidate {
	body := utils.StripHTML(p.Body.Storage.Value)
	author := p.Version.By
	if author.DisplayName == "" {
		author = p.History.CreatedBy
	}
	when := p.Version.When
	if when == "" {
		when = p.History.CreatedDate
	}
	spaceName := "Unknown Space"
	if p.Space != nil && p.Space.Name != "" {
		spaceName = p.Space.Name
	}
	text := strings.TrimSpace(p.Title + "\n" + body)

	return Candidate{
		Request: models.Request{
			Source:         models.SourceConfluence,
			SourceID:       "page-" + p.ID,
			Project:        c.Site.Project,
			RequesterID:    author.AccountID,
			RequesterName:  author.DisplayName,
			RequesterEmail: author.Email,
			Description:    utils.TruncateRunes(body, pageDescriptionRunes),
			ChannelID:      spaceKey(p.Space),
			ChannelName:    "Confluence Page: " + spaceName,
			OriginalURL:    contentURL(c.Client, p, c.Client.PageURL(p.ID)),
			RequestedAt:    parseTimestamp(log, when),
		},
		Text:            text,
		Author:          author.DisplayName,
		Context:         "Confluence page in " + spaceName,
		ContentCategory: models.CategoryDocumentation,
	}
}

// ConfluenceCommentCollector reads comments on recently modified pages.
// Only the first MaxPages pages get their comments fetched.
type ConfluenceCommentCollector struct {
	Site         config.ConfluenceSite
	Client       *confluence.Client
	Sink         *Sink
	MaxPages     int
	LookbackDays int
}

func (c *ConfluenceCommentCollector) Name() string {
	return "confluence-comments:" + c.Site.Project
}

func (c *ConfluenceCommentCollector) Source() models.Source { return models.SourceConfluence }

func (c *ConfluenceCommentCollector) Configured() bool {
	return c.Client != nil && c.Site.Domain != "" && c.Client.Email != "" && c.Client.APIToken != ""
}

func (c *ConfluenceCommentCollector) Collect(ctx context.Context, run Run) Result {
	var res Result
	log := run.Logger.With().Str("collector", c.Name()).Logger()

	maxPages := c.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	since := run.Window.Start
	if c.LookbackDays > 0 {
		since = run.Window.End.AddDate(0, 0, -c.LookbackDays)
	}
	cql := pageCQL(since, run.Window.End, c.Site.Spaces) + " order by lastmodified desc"

	fetches := 0
	var targets []confluence.Content
	for start := 0; len(targets) < maxPages; start += confluencePageLimit {
		if run.Budget.Exhausted(fetches) {
			res.Truncated = true
			break
		}
		fetches++
		page, err := c.Client.Search(ctx, cql, "space", start, confluencePageLimit)
		if err != nil {
			res.errorf(fmt.Sprintf("confluence %s comment page search start=%d", c.Site.Project, start), err)
			break
		}
		targets = append(targets, page.Results...)
		if !page.HasMore() {
			break
		}
	}
	if len(targets) > maxPages {
		targets = targets[:maxPages]
	}

	for _, target := range targets {
		if res.Truncated {
			break
		}
		for start := 0; ; start += confluencePageLimit {
			if run.Budget.Exhausted(fetches) {
				res.Truncated = true
				break
			}
			fetches++
			comments, err := c.Client.ChildComments(ctx, target.ID, start, confluencePageLimit)
			if err != nil {
				// pages we cannot read comments for are skipped
				res.Skipped++
				log.Debug().Err(err).Str("page_id", target.ID).Msg("comment fetch failed")
				break
			}
			cands := make([]Candidate, 0, len(comments.Results))
			for _, cm := range comments.Results {
				cands = append(cands, c.candidate(log, target, cm))
			}
			c.Sink.Submit(ctx, run, cands, &res)
			if !comments.HasMore() {
				break
			}
		}
	}
	log.Info().Int("pages", len(targets)).Int("count", res.Count).Int("seen", res.Seen).Msg("confluence comments collected")
	return res
}

func (c *ConfluenceCommentCollector) candidate(log zerolog.Logger, page, cm confluence.Content) Candidate {
	text := utils.StripHTML(cm.Body.Storage.Value)
	author := cm.History.CreatedBy
	if author.DisplayName == "" {
		author = cm.Version.By
	}
	when := cm.History.CreatedDate
	if when == "" {
		when = cm.Version.When
	}
	pageTitle := page.Title
	if pageTitle == "" {
		pageTitle = "Unknown Page"
	}

	return Candidate{
		Request: models.Request{
			Source:         models.SourceConfluence,
			SourceID:       cm.ID,
			Project:        c.Site.Project,
			RequesterID:    author.AccountID,
			RequesterName:  author.DisplayName,
			RequesterEmail: author.Email,
			Description:    text,
			ChannelID:      spaceKey(page.Space),
			ChannelName:    "Confluence Comment on: " + pageTitle,
			ThreadTS:       page.ID,
			OriginalURL:    contentURL(c.Client, cm, c.Client.CommentURL(page.ID, cm.ID)),
			RequestedAt:    parseTimestamp(log, when),
		},
		Text:            text,
		Author:          author.DisplayName,
		Context:         "Comment on Confluence page " + pageTitle,
		ContentCategory: models.CategoryComment,
	}
}

func pageCQL(from, to time.Time, spaces []string) string {
	cql := fmt.Sprintf(`type=page and lastmodified >= "%s" and lastmodified <= "%s"`,
		from.Format(confluenceCQLTimeForm), to.Format(confluenceCQLTimeForm))
	if len(spaces) > 0 {
		parts := make([]string, len(spaces))
		for i, s := range spaces {
			parts[i] = fmt.Sprintf(`space="%s"`, s)
		}
		cql += " and (" + strings.Join(parts, " OR ") + ")"
	}
	return cql
}

func contentURL(client *confluence.Client, item confluence.Content, fallback string) string {
	if item.Links.WebUI != "" {
		return client.BaseURL + "/wiki" + item.Links.WebUI
	}
	return fallback
}

func spaceKey(s *confluence.Space) string {
	if s == nil {
		return ""
	}
	return s.Key
}
