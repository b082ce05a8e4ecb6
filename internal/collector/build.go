package collector

import (
	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/providers"
	"github.com/freedom_case_2/crcollector/internal/providers/confluence"
	"github.com/freedom_case_2/crcollector/internal/providers/figma"
	"github.com/freedom_case_2/crcollector/internal/providers/slack"
)

// FromConfig builds every collector the configuration describes. Collectors
// without credentials are still returned so runs can report them as skipped.
func FromConfig(cfg config.Config, sink *Sink, logger zerolog.Logger) ([]Collector, error) {
	sites, err := config.ParseConfluenceSites(cfg.ConfluenceSites)
	if err != nil {
		return nil, err
	}
	httpClient := providers.NewHTTPClient(cfg.HTTPTimeout)

	var out []Collector
	if len(sites) == 0 {
		sites = []config.ConfluenceSite{{Project: "confluence"}}
	}
	for _, site := range sites {
		var client *confluence.Client
		if site.Domain != "" {
			client = confluence.New(site.Domain, cfg.ConfluenceEmail, cfg.ConfluenceAPIToken, httpClient)
		}
		out = append(out,
			&ConfluencePageCollector{Site: site, Client: client, Sink: sink},
			&ConfluenceCommentCollector{
				Site:         site,
				Client:       client,
				Sink:         sink,
				MaxPages:     cfg.ConfluenceMaxCommentPages,
				LookbackDays: cfg.ConfluenceCommentDays,
			},
		)
	}

	out = append(out, &FigmaCollector{
		Client:          figma.New(cfg.FigmaToken, httpClient),
		FileKeys:        config.SplitList(cfg.FigmaFileKeys),
		Project:         cfg.FigmaProject,
		IncludeResolved: cfg.FigmaIncludeResolved,
		MaxComments:     cfg.FigmaMaxComments,
		Sink:            sink,
	})
	out = append(out, &SlackCollector{
		Client:   slack.New(cfg.SlackBotToken, httpClient),
		Channels: config.SplitList(cfg.SlackChannels),
		Project:  cfg.SlackProject,
		Sink:     sink,
	})

	for _, c := range out {
		logger.Debug().Str("collector", c.Name()).Bool("configured", c.Configured()).Msg("collector registered")
	}
	return out, nil
}

