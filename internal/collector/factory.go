package collector

import (
	"fmt"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
)

// Settings selects and configures a Source.
type Settings struct {
	Mode           string
	UserAgent      string
	BaseURL        string
	RequestTimeout time.Duration
	ClientID       string
	ClientSecret   string
	Username       string
	Password       string
}

// NewSource selects the correct implementation based on the mode.
func NewSource(s Settings) (domain.Source, error) {
	switch s.Mode {
	case "api":
		return NewAPIClient(s.ClientID, s.ClientSecret, s.Username, s.Password, s.UserAgent)
	case "public", "":
		if s.UserAgent == "" {
			return nil, fmt.Errorf("REDDIT_USER_AGENT is required for public mode")
		}
		opts := []PublicOption{WithRequestTimeout(s.RequestTimeout)}
		if s.BaseURL != "" {
			opts = append(opts, WithBaseURL(s.BaseURL))
		}
		return NewPublicClient(s.UserAgent, opts...)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", s.Mode)
	}
}
