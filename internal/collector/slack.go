package collector

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/slack"
)

const slackPageLimit = 100

type SlackCollector struct {
	Client   *slack.Client
	Channels []string
	Project  string
	Sink     *Sink
}

func (c *SlackCollector) Name() string { return "slack" }

func (c *SlackCollector) Source() models.Source { return models.SourceSlack }

func (c *SlackCollector) Configured() bool {
	return c.Client != nil && c.Client.Token != "" && len(c.Channels) > 0
}

// slackRun holds the per-run user name cache and page counter.
type slackRun struct {
	Run
	log     zerolog.Logger
	users   map[string]slack.User
	fetches int
}

func (c *SlackCollector) Collect(ctx context.Context, run Run) Result {
	var res Result
	sr := &slackRun{
		Run:   run,
		log:   run.Logger.With().Str("collector", c.Name()).Logger(),
		users: make(map[string]slack.User),
	}
	for _, ch := range c.Channels {
		if res.Truncated {
			break
		}
		c.collectChannel(ctx, sr, ch, &res)
	}
	sr.log.Info().Int("count", res.Count).Int("seen", res.Seen).Int("errors", len(res.Errors)).Msg("slack messages collected")
	return res
}

func (c *SlackCollector) collectChannel(ctx context.Context, sr *slackRun, channel string, res *Result) {
	name := channel
	if info, err := c.Client.ConversationInfo(ctx, channel); err != nil {
		sr.log.Warn().Err(err).Str("channel", channel).Msg("conversation lookup failed")
	} else if info.Name != "" {
		name = info.Name
	}

	params := slack.HistoryParams{
		Channel: channel,
		Oldest:  unixString(sr.Window.Start.Unix()),
		Latest:  unixString(sr.Window.End.Unix()),
		Limit:   slackPageLimit,
	}
	for {
		if sr.Budget.Exhausted(sr.fetches) {
			res.Truncated = true
			return
		}
		sr.fetches++
		page, err := c.Client.History(ctx, params)
		if err != nil {
			res.errorf("slack history "+channel, err)
			return
		}

		var cands []Candidate
		for _, m := range page.Messages {
			if !usable(m) {
				continue
			}
			cands = append(cands, c.candidate(ctx, sr, channel, name, m))
			if m.ReplyCount > 0 {
				cands = append(cands, c.replies(ctx, sr, channel, name, m.TS, res)...)
			}
		}
		c.Sink.Submit(ctx, sr.Run, cands, res)

		if !page.HasMore || page.NextCursor == "" {
			return
		}
		params.Cursor = page.NextCursor
	}
}

func (c *SlackCollector) replies(ctx context.Context, sr *slackRun, channel, name, threadTS string, res *Result) []Candidate {
	var out []Candidate
	cursor := ""
	for {
		if sr.Budget.Exhausted(sr.fetches) {
			res.Truncated = true
			return out
		}
		sr.fetches++
		page, err := c.Client.Replies(ctx, channel, threadTS, cursor, slackPageLimit)
		if err != nil {
			res.errorf("slack replies "+channel+"/"+threadTS, err)
			return out
		}
		for _, m := range page.Messages {
			if m.TS == threadTS || !usable(m) {
				continue
			}
			out = append(out, c.candidate(ctx, sr, channel, name, m))
		}
		if !page.HasMore || page.NextCursor == "" {
			return out
		}
		cursor = page.NextCursor
	}
}

func (c *SlackCollector) candidate(ctx context.Context, sr *slackRun, channel, name string, m slack.Message) Candidate {
	user := c.user(ctx, sr, m.User)
	var files []string
	for _, f := range m.Files {
		if f.Permalink != "" {
			files = append(files, f.Permalink)
		}
	}
	return Candidate{
		Request: models.Request{
			Source:         models.SourceSlack,
			SourceID:       m.TS,
			Project:        c.Project,
			RequesterID:    m.User,
			RequesterName:  user.DisplayName(),
			RequesterEmail: user.Profile.Email,
			Description:    m.Text,
			ChannelID:      channel,
			ChannelName:    name,
			ThreadTS:       m.ThreadTS,
			OriginalURL:    slack.Permalink(channel, m.TS),
			Attachments:    files,
			RequestedAt:    parseSlackTS(sr.log, m.TS),
		},
		Text:    m.Text,
		Author:  user.DisplayName(),
		Context: "Slack #" + name,
	}
}

// user resolves a member id once per run; failures resolve to "Unknown".
func (c *SlackCollector) user(ctx context.Context, sr *slackRun, id string) slack.User {
	if u, ok := sr.users[id]; ok {
		return u
	}
	u, err := c.Client.UserInfo(ctx, id)
	if err != nil {
		sr.log.Debug().Err(err).Str("user", id).Msg("user lookup failed")
		u = slack.User{ID: id}
	}
	sr.users[id] = u
	return u
}

func usable(m slack.Message) bool {
	return m.Subtype == "" && m.User != "" && strings.TrimSpace(m.Text) != ""
}

func unixString(sec int64) string {
	return strconv.FormatInt(sec, 10)
}
