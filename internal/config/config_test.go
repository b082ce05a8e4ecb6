package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfluenceSites(t *testing.T) {
	sites, err := ParseConfluenceSites("fanlight=fanlight-weplanet.atlassian.net:DEV|QA, https://momgle-edu.atlassian.net/")
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, "fanlight", sites[0].Project)
	assert.Equal(t, "fanlight-weplanet.atlassian.net", sites[0].Domain)
	assert.Equal(t, []string{"DEV", "QA"}, sites[0].Spaces)

	assert.Equal(t, "momgle-edu", sites[1].Project)
	assert.Equal(t, "momgle-edu.atlassian.net", sites[1].Domain)
	assert.Empty(t, sites[1].Spaces)
}

func TestParseConfluenceSitesRejectsEmptyDomain(t *testing.T) {
	_, err := ParseConfluenceSites("fanlight=")
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b,"))
	assert.Nil(t, SplitList(""))
}

func TestResolvedStoreDriver(t *testing.T) {
	assert.Equal(t, "memory", Config{}.ResolvedStoreDriver())
	assert.Equal(t, "postgres", Config{DatabaseURL: "postgres://x"}.ResolvedStoreDriver())
	assert.Equal(t, "sqlite", Config{StoreDriver: "SQLite", DatabaseURL: "postgres://x"}.ResolvedStoreDriver())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COLLECT_HOUR", "7")
	t.Setenv("SLACK_MONITOR_CHANNELS", "C1,C2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CollectHour)
	assert.Equal(t, []string{"C1", "C2"}, SplitList(cfg.SlackChannels))
	assert.Equal(t, 50, cfg.FigmaMaxComments)
	assert.Equal(t, "rules", cfg.Classifier)
	assert.InDelta(t, 0.3, cfg.AITemperature, 1e-9)
	assert.Equal(t, []string{"iOS", "Android", "DANIEL", "LUCY", "LILY"}, SplitList(cfg.InternalAuthors))
}
