package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"uniherald/internal/domain"
)

const (
	FeedModeScrape = "scrape"
	FeedModeBridge = "bridge"
)

type Config struct {
	FeedURL  string `env:"FEED_URL,required,notEmpty"`
	FeedMode string `env:"FEED_MODE"                 envDefault:"scrape"`

	// Semicolon-separated name=endpoint pairs, e.g.
	// "general=https://discord.com/api/webhooks/...;alerts=https://...".
	WebhookTargets string `env:"WEBHOOK_TARGETS,required,notEmpty"`

	StorePath      string        `env:"STORE_PATH"      envDefault:"posted.json"`
	CycleInterval  time.Duration `env:"CYCLE_INTERVAL"  envDefault:"10m"`
	BackupCooldown time.Duration `env:"BACKUP_COOLDOWN" envDefault:"6h"`
	StatusAddr     string        `env:"STATUS_ADDR"     envDefault:":8080"`

	FeedItemSelector  string `env:"FEED_ITEM_SELECTOR"`
	FeedTitleSelector string `env:"FEED_TITLE_SELECTOR"`
	FeedDateSelector  string `env:"FEED_DATE_SELECTOR"`

	GitHubToken  string `env:"GITHUB_TOKEN"`
	BackupRepo   string `env:"BACKUP_REPO"`
	BackupPath   string `env:"BACKUP_PATH"   envDefault:"posted.json"`
	BackupBranch string `env:"BACKUP_BRANCH" envDefault:"main"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.FeedMode != FeedModeScrape && cfg.FeedMode != FeedModeBridge {
		return Config{}, fmt.Errorf("FEED_MODE must be %q or %q (got %q)",
			FeedModeScrape, FeedModeBridge, cfg.FeedMode)
	}

	return cfg, nil
}

// ParseTargets splits the WEBHOOK_TARGETS value into delivery targets.
// Discord endpoints are recognized by host so their payload shape can
// differ from generic webhooks.
func ParseTargets(raw string) ([]domain.Target, error) {
	var targets []domain.Target
	seen := make(map[string]struct{})

	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, endpoint, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("target %q is not a name=endpoint pair", name)
		}

		name = strings.TrimSpace(name)
		endpoint = strings.TrimSpace(endpoint)
		if name == "" || endpoint == "" {
			return nil, errors.New("target name and endpoint must be non-empty")
		}

		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("target %q endpoint is not an absolute URL", name)
		}

		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate target name %q", name)
		}
		seen[name] = struct{}{}

		targets = append(targets, domain.Target{
			Name:     name,
			Endpoint: endpoint,
			Kind:     targetKind(u.Host),
		})
	}

	if len(targets) == 0 {
		return nil, errors.New("no delivery targets configured")
	}

	return targets, nil
}

func targetKind(host string) string {
	if strings.HasSuffix(host, "discord.com") || strings.HasSuffix(host, "discordapp.com") {
		return domain.TargetKindDiscord
	}

	return domain.TargetKindGeneric
}
