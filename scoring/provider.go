package scoring

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/hazyhaar/originality/idgen"
	"github.com/hazyhaar/originality/observability"
)

// Provider scores text. External providers return *ProviderError on failure.
type Provider interface {
	Name() string
	Score(ctx context.Context, text string) (*Result, error)
}

// Kind identifies one of the supported providers.
type Kind string

const (
	KindMock      Kind = "mock"
	KindCopyleaks Kind = "copyleaks"
	KindRapidAPI  Kind = "rapidapi"
	KindDetector  Kind = "plagiarismdetector"
)

// ParseKind maps a configured provider selector to a Kind. The generic
// providerA/B/C names alias the concrete services. ok is false for unknown
// selectors, which callers treat as mock.
func ParseKind(s string) (kind Kind, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mock":
		return KindMock, true
	case "providera", "copyleaks":
		return KindCopyleaks, true
	case "providerb", "rapidapi":
		return KindRapidAPI, true
	case "providerc", "plagiarismdetector":
		return KindDetector, true
	}
	return KindMock, false
}

// Config selects and configures the scoring provider.
type Config struct {
	// Provider is the selector: mock, providerA|copyleaks,
	// providerB|rapidapi, providerC|plagiarismdetector.
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	// Email is the Copyleaks account email.
	Email string `yaml:"email"`
	// BaseURL overrides the endpoint of the selected external provider.
	BaseURL string `yaml:"base_url"`
	// PublicBaseURL is where Copyleaks posts status webhooks.
	PublicBaseURL string        `yaml:"public_base_url"`
	Timeout       time.Duration `yaml:"timeout"`

	// BreakerThreshold is the number of consecutive failures that opens
	// the circuit to the external provider. Default 5.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`

	Logger  *slog.Logger                  `yaml:"-"`
	Rand    *rand.Rand                    `yaml:"-"`
	Tracker *ScanTracker                  `yaml:"-"`
	Cache   Cache                         `yaml:"-"`
	Metrics *observability.MetricsManager `yaml:"-"`
	ScanIDs idgen.Generator               `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ScanIDs == nil {
		c.ScanIDs = idgen.Prefixed("scan-", idgen.Default)
	}
}
