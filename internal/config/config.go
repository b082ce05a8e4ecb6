package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CronSecret     string        `mapstructure:"CRON_SECRET"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	Timezone           string        `mapstructure:"TIMEZONE"`
	CollectHour        int           `mapstructure:"COLLECT_HOUR"`
	LookbackDays       int           `mapstructure:"COLLECT_LOOKBACK_DAYS"`
	CollectBudget      time.Duration `mapstructure:"COLLECT_BUDGET"`
	CollectConcurrency int           `mapstructure:"COLLECT_CONCURRENCY"`
	ScheduleEnabled    bool          `mapstructure:"SCHEDULE_ENABLED"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT"`
	MaxPages           int           `mapstructure:"MAX_PAGES"`

	ConfluenceEmail           string `mapstructure:"CONFLUENCE_EMAIL"`
	ConfluenceAPIToken        string `mapstructure:"CONFLUENCE_API_TOKEN"`
	ConfluenceSites           string `mapstructure:"CONFLUENCE_SITES"`
	ConfluenceMaxCommentPages int    `mapstructure:"CONFLUENCE_MAX_COMMENT_PAGES"`
	ConfluenceCommentDays     int    `mapstructure:"CONFLUENCE_COMMENT_LOOKBACK_DAYS"`

	FigmaToken           string `mapstructure:"FIGMA_ACCESS_TOKEN"`
	FigmaFileKeys        string `mapstructure:"FIGMA_FILE_KEYS"`
	FigmaIncludeResolved bool   `mapstructure:"FIGMA_INCLUDE_RESOLVED"`
	FigmaMaxComments     int    `mapstructure:"FIGMA_MAX_COMMENTS"`
	FigmaProject         string `mapstructure:"FIGMA_PROJECT"`

	SlackBotToken      string `mapstructure:"SLACK_BOT_TOKEN"`
	SlackChannels      string `mapstructure:"SLACK_MONITOR_CHANNELS"`
	SlackReportChannel string `mapstructure:"SLACK_REPORT_CHANNEL"`
	SlackProject       string `mapstructure:"SLACK_PROJECT"`

	Classifier    string  `mapstructure:"CLASSIFIER"`
	AIURL         string  `mapstructure:"AI_URL"`
	AIModel       string  `mapstructure:"AI_MODEL"`
	AIAPIKey      string  `mapstructure:"AI_API_KEY"`
	AIBatchSize   int     `mapstructure:"AI_BATCH_SIZE"`
	AITemperature float64 `mapstructure:"AI_TEMPERATURE"`

	RequestKeywords     string `mapstructure:"REQUEST_KEYWORDS"`
	UrgentKeywords      string `mapstructure:"URGENT_KEYWORDS"`
	HighKeywords        string `mapstructure:"HIGH_KEYWORDS"`
	LowKeywords         string `mapstructure:"LOW_KEYWORDS"`
	BugKeywords         string `mapstructure:"BUG_KEYWORDS"`
	ImprovementKeywords string `mapstructure:"IMPROVEMENT_KEYWORDS"`
	FeatureKeywords     string `mapstructure:"FEATURE_KEYWORDS"`
	InquiryKeywords     string `mapstructure:"INQUIRY_KEYWORDS"`
	ClientAuthors       string `mapstructure:"CLIENT_AUTHORS"`
	InternalAuthors     string `mapstructure:"INTERNAL_AUTHORS"`

	ReportOutputDir string `mapstructure:"REPORT_OUTPUT_DIR"`
}

// ConfluenceSite is one Atlassian cloud site collected under a project label.
type ConfluenceSite struct {
	Project string
	Domain  string
	Spaces  []string
}

var defaults = map[string]any{
	"ENV":                              "dev",
	"PORT":                             "8080",
	"DATABASE_URL":                     "",
	"STORE_DRIVER":                     "",
	"SQLITE_PATH":                      "crcollector.db",
	"REDIS_URL":                        "",
	"CACHE_TTL":                        "1h",
	"ADMIN_KEY":                        "",
	"CRON_SECRET":                      "",
	"CORS_ALLOWED_ORIGINS":             "*",
	"REQUEST_TIMEOUT":                  "30s",
	"LOG_LEVEL":                        "info",
	"TIMEZONE":                         "Asia/Seoul",
	"COLLECT_HOUR":                     9,
	"COLLECT_LOOKBACK_DAYS":            0,
	"COLLECT_BUDGET":                   "50s",
	"COLLECT_CONCURRENCY":              4,
	"SCHEDULE_ENABLED":                 false,
	"HTTP_TIMEOUT":                     "15s",
	"MAX_PAGES":                        10,
	"CONFLUENCE_EMAIL":                 "",
	"CONFLUENCE_API_TOKEN":             "",
	"CONFLUENCE_SITES":                 "",
	"CONFLUENCE_MAX_COMMENT_PAGES":     20,
	"CONFLUENCE_COMMENT_LOOKBACK_DAYS": 30,
	"FIGMA_ACCESS_TOKEN":               "",
	"FIGMA_FILE_KEYS":                  "",
	"FIGMA_INCLUDE_RESOLVED":           false,
	"FIGMA_MAX_COMMENTS":               50,
	"FIGMA_PROJECT":                    "",
	"SLACK_BOT_TOKEN":                  "",
	"SLACK_MONITOR_CHANNELS":           "",
	"SLACK_REPORT_CHANNEL":             "",
	"SLACK_PROJECT":                    "",
	"CLASSIFIER":                       "rules",
	"AI_URL":                           "https://api.openai.com/v1",
	"AI_MODEL":                         "gpt-4o-mini",
	"AI_API_KEY":                       "",
	"AI_BATCH_SIZE":                    20,
	"AI_TEMPERATURE":                   0.3,
	"REQUEST_KEYWORDS":                 "요청,문의,개선,오류,버그,수정,변경,이슈,request,bug,error,issue,please",
	"URGENT_KEYWORDS":                  "긴급,급함,ASAP,장애,다운,먹통,중단,멈춤,urgent,outage",
	"HIGH_KEYWORDS":                    "중요,우선,빠른,시급,important,priority",
	"LOW_KEYWORDS":                     "검토,고려,제안,아이디어,suggestion,idea,nice to have",
	"BUG_KEYWORDS":                     "버그,오류,에러,안됨,안돼,실패,bug,error,broken,crash,fail",
	"IMPROVEMENT_KEYWORDS":             "개선,변경,수정,improve,change,update",
	"FEATURE_KEYWORDS":                 "추가,신규,새로운,add,new feature",
	"INQUIRY_KEYWORDS":                 "문의,질문,question,how do",
	"CLIENT_AUTHORS":                   "heather,client,customer",
	"INTERNAL_AUTHORS":                 "iOS,Android,DANIEL,LUCY,LILY",
	"REPORT_OUTPUT_DIR":                "./exports",
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	// AutomaticEnv only feeds Unmarshal for keys viper already knows about.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	if cfg.CollectHour < 0 || cfg.CollectHour > 23 {
		return Config{}, fmt.Errorf("COLLECT_HOUR must be within 0..23, got %d", cfg.CollectHour)
	}
	return cfg, nil
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ResolvedStoreDriver falls back to postgres when a DATABASE_URL is present
// and to the in-memory store otherwise.
func (c Config) ResolvedStoreDriver() string {
	if d := strings.ToLower(strings.TrimSpace(c.StoreDriver)); d != "" {
		return d
	}
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

// SplitList splits a comma separated setting, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseConfluenceSites reads entries of the form project=domain[:SPACE|SPACE].
// A bare domain uses the first label of the host as project.
func ParseConfluenceSites(raw string) ([]ConfluenceSite, error) {
	var sites []ConfluenceSite
	for _, entry := range SplitList(raw) {
		project, rest, hasProject := strings.Cut(entry, "=")
		if !hasProject {
			rest = entry
			project = ""
		}
		rest = strings.TrimSpace(rest)
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, "https://"), "http://")
		domain, spaces, _ := strings.Cut(rest, ":")
		domain = strings.TrimRight(strings.TrimSpace(domain), "/")
		if domain == "" {
			return nil, fmt.Errorf("confluence site %q has no domain", entry)
		}
		project = strings.TrimSpace(project)
		if project == "" {
			project, _, _ = strings.Cut(domain, ".")
		}
		site := ConfluenceSite{Project: project, Domain: domain}
		for _, s := range strings.Split(spaces, "|") {
			if s = strings.TrimSpace(s); s != "" {
				site.Spaces = append(site.Spaces, s)
			}
		}
		sites = append(sites, site)
	}
	return sites, nil
}
