package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const ENV_FILE = ".env"
const CONFIG_FILE = "config.yaml"

type AppConfig struct {
	Logging     LoggingConfig  `yaml:"logging"`
	GeminiModel string         `yaml:"gemini_model"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	Communities []Community    `yaml:"communities"`

	// filled from env, not yaml
	MongoURI     string `yaml:"-"`
	MongoDBName  string `yaml:"-"`
	GeminiApiKey string `yaml:"-"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PipelineConfig holds the gates and budgets of the content pipeline.
// Scores and thresholds are integers on a 0-100 scale.
type PipelineConfig struct {
	RelevanceFloor               int `yaml:"relevance_floor"`
	FactCheckConfidenceThreshold int `yaml:"fact_check_confidence_threshold"`
	QualityThreshold             int `yaml:"quality_threshold"`
	// NeutralFactConfidence is assigned to drafts with no extractable claims.
	NeutralFactConfidence     int `yaml:"neutral_fact_confidence"`
	MaxRetriesPerPhase        int `yaml:"max_retries_per_phase"`
	DailyDraftSlots           int `yaml:"daily_draft_slots"`
	FollowUpCheckIntervalDays int `yaml:"follow_up_check_interval_days"`
	MaxThreadAgeBeforeDormant int `yaml:"max_story_thread_age_before_dormant_days"`
	PhaseTimeoutSeconds       int `yaml:"phase_timeout_seconds"`
	FeedFetchLimit            int `yaml:"feed_fetch_limit"`
}

// PhaseTimeout returns the deadline applied to every external call in a phase.
func (p PipelineConfig) PhaseTimeout() time.Duration {
	if p.PhaseTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.PhaseTimeoutSeconds) * time.Second
}

// FollowUpInterval returns the time-based trigger interval.
func (p PipelineConfig) FollowUpInterval() time.Duration {
	days := p.FollowUpCheckIntervalDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * 24 * time.Hour
}

// DormantAge returns how long a thread may go without development before the
// trigger scan moves it to dormant.
func (p PipelineConfig) DormantAge() time.Duration {
	days := p.MaxThreadAgeBeforeDormant
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// Community is one region the pipeline ingests content for.
type Community struct {
	ID         string       `yaml:"id"`
	Name       string       `yaml:"name"`
	Feeds      []FeedSource `yaml:"feeds"`
	ScrapeURLs []string     `yaml:"scrape_urls"`
}

// FeedSource is a single RSS feed configuration item
type FeedSource struct {
	Name   string `yaml:"name"`
	RSSURL string `yaml:"rss_url"`
}

var config *AppConfig

func InitApp() {
	// load environment variables
	godotenv.Load(filepath.Join(GetBasePath(), ENV_FILE))

	// load configuration file
	data, err := os.ReadFile(filepath.Join(GetBasePath(), CONFIG_FILE))
	if err != nil {
		panic(err)
	}

	var c AppConfig
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		panic(err)
	}

	c.MongoURI = os.Getenv("MONGO_URI")
	c.MongoDBName = os.Getenv("MONGO_DB_NAME")
	c.GeminiApiKey = os.Getenv("GEMINI_API_KEY")

	config = &c

	InitLogger(c.Logging)
}

func GetConfig() AppConfig {
	if config == nil {
		InitApp()
	}

	return *config
}

func GetBasePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		cfgPath := filepath.Join(dir, CONFIG_FILE)
		if info, err := os.Stat(cfgPath); err == nil && !info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
