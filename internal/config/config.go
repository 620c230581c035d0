package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Labels holds the configurable label names the bot reads and writes on
// proposal issues.
type Labels struct {
	Proposal            string
	InReview            string
	FCPProposed         string
	FCP                 string
	FCPFinished         string
	DispositionMerge    string
	DispositionPostpone string
	DispositionClose    string
	UnresolvedConcerns  string
}

type Config struct {
	Addr          string
	DatabaseURL   string
	WebhookSecret string

	GithubBaseURL string
	GithubToken   string
	GithubAppID   string
	GithubAppKey  string // PEM-encoded RSA private key (GitHub App auth)

	BotLogin  string
	RepoOwner string
	RepoName  string
	TeamSlug  string

	VoteRatio   float64
	FCPDuration time.Duration
	GracePeriod time.Duration

	Labels Labels

	KafkaBrokers []string
	KafkaTopic   string

	S3Bucket string
	S3Prefix string
}

const (
	defaultAddr        = ":8090"
	defaultVoteRatio   = 0.75
	defaultFCPDuration = 120 * time.Hour
	defaultGracePeriod = 24 * time.Hour
)

func Load() (Config, error) {
	cfg := Config{
		Addr:          getEnv("FCPBOT_ADDR", defaultAddr),
		DatabaseURL:   firstNonEmpty(os.Getenv("FCPBOT_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		WebhookSecret: os.Getenv("FCPBOT_WEBHOOK_SECRET"),
		GithubBaseURL: getEnv("FCPBOT_GITHUB_BASE_URL", "https://api.github.com"),
		GithubToken:   os.Getenv("FCPBOT_GITHUB_TOKEN"),
		GithubAppID:   os.Getenv("FCPBOT_GITHUB_APP_ID"),
		GithubAppKey:  os.Getenv("FCPBOT_GITHUB_APP_KEY"),
		BotLogin:      os.Getenv("FCPBOT_LOGIN"),
		RepoOwner:     os.Getenv("FCPBOT_REPO_OWNER"),
		RepoName:      os.Getenv("FCPBOT_REPO_NAME"),
		TeamSlug:      os.Getenv("FCPBOT_TEAM_SLUG"),
		VoteRatio:     getFloat("FCPBOT_VOTE_RATIO", defaultVoteRatio),
		FCPDuration:   getDuration("FCPBOT_FCP_DURATION", defaultFCPDuration),
		GracePeriod:   getDuration("FCPBOT_GRACE_PERIOD", defaultGracePeriod),
		Labels: Labels{
			Proposal:            getEnv("FCPBOT_LABEL_PROPOSAL", "proposal"),
			InReview:            getEnv("FCPBOT_LABEL_IN_REVIEW", "proposal-in-review"),
			FCPProposed:         getEnv("FCPBOT_LABEL_FCP_PROPOSED", "proposed-final-comment-period"),
			FCP:                 getEnv("FCPBOT_LABEL_FCP", "final-comment-period"),
			FCPFinished:         getEnv("FCPBOT_LABEL_FCP_FINISHED", "finished-final-comment-period"),
			DispositionMerge:    getEnv("FCPBOT_LABEL_DISPOSITION_MERGE", "disposition-merge"),
			DispositionPostpone: getEnv("FCPBOT_LABEL_DISPOSITION_POSTPONE", "disposition-postpone"),
			DispositionClose:    getEnv("FCPBOT_LABEL_DISPOSITION_CLOSE", "disposition-close"),
			UnresolvedConcerns:  getEnv("FCPBOT_LABEL_UNRESOLVED_CONCERNS", "unresolved-concerns"),
		},
		KafkaBrokers: splitList(os.Getenv("FCPBOT_KAFKA_BROKERS")),
		KafkaTopic:   os.Getenv("FCPBOT_KAFKA_TOPIC"),
		S3Bucket:     os.Getenv("FCPBOT_S3_BUCKET"),
		S3Prefix:     os.Getenv("FCPBOT_S3_PREFIX"),
	}

	if cfg.BotLogin == "" {
		return Config{}, fmt.Errorf("FCPBOT_LOGIN required")
	}
	if cfg.RepoOwner == "" || cfg.RepoName == "" {
		return Config{}, fmt.Errorf("FCPBOT_REPO_OWNER and FCPBOT_REPO_NAME required")
	}
	if cfg.TeamSlug == "" {
		return Config{}, fmt.Errorf("FCPBOT_TEAM_SLUG required")
	}
	if cfg.WebhookSecret == "" {
		return Config{}, fmt.Errorf("FCPBOT_WEBHOOK_SECRET required")
	}
	if cfg.GithubToken == "" && (cfg.GithubAppID == "" || cfg.GithubAppKey == "") {
		return Config{}, fmt.Errorf("FCPBOT_GITHUB_TOKEN or FCPBOT_GITHUB_APP_ID + FCPBOT_GITHUB_APP_KEY required")
	}
	if cfg.VoteRatio <= 0 || cfg.VoteRatio > 1 {
		return Config{}, fmt.Errorf("FCPBOT_VOTE_RATIO must be in (0, 1]")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return Config{}, fmt.Errorf("FCPBOT_KAFKA_TOPIC required when FCPBOT_KAFKA_BROKERS set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
