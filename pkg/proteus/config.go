package proteus

import (
	"fmt"
	"net/url"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/proteus/pkg/common"
	"github.com/raterudder/proteus/pkg/types"
)

// operations * targets is tiny, this leaves plenty of room
const defaultCacheSize = 64

// Config holds everything needed to build a logged-in Client from flags.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	Credentials types.Credentials
	Target      types.Target
}

// Configured registers the proteus flags and returns a Config that is filled
// in once flags are parsed.
func Configured() *Config {
	c := &Config{}
	baseURL := lflag.String("proteus-url", DefaultBaseURL, "Base URL of the Proteus backend")
	timeout := lflag.Duration("proteus-timeout", 30*time.Second, "Timeout for each request to Proteus")
	cacheTTL := lflag.Duration("proteus-cache-ttl", 0, "How long to cache results of named operations. 0 disables the cache.")
	email := lflag.String("proteus-email", "", "Email to log in to Proteus with")
	password := lflag.String("proteus-password", "", "Password to log in to Proteus with")
	tenantID := lflag.String("proteus-tenant-id", types.DefaultTenantID, "Proteus tenant ID")
	inverterID := lflag.String("proteus-inverter-id", "", "Inverter ID. If empty the first inverter of the account is used.")
	householdID := lflag.String("proteus-household-id", "", "Household ID, needed for link box procedures")

	lflag.Do(func() {
		c.BaseURL = *baseURL
		c.Timeout = *timeout
		c.CacheTTL = *cacheTTL
		c.Credentials = types.Credentials{
			Email:    *email,
			Password: *password,
			TenantID: *tenantID,
		}
		c.Target = types.Target{
			InverterID:  *inverterID,
			HouseholdID: *householdID,
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("proteus-url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("failed to parse proteus url (%s): %w", c.BaseURL, err)
	}
	if c.Credentials.Email == "" {
		return fmt.Errorf("proteus-email is required")
	}
	if c.Credentials.Password == "" {
		return fmt.Errorf("proteus-password is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("proteus-timeout cannot be negative")
	}
	return nil
}

// NewClient builds an unauthenticated Client from the configuration.
func (c *Config) NewClient() *Client {
	return New(
		WithHTTPClient(common.HTTPClient(c.Timeout)),
		WithBaseURL(c.BaseURL),
		WithTarget(c.Target),
		WithCache(defaultCacheSize, c.CacheTTL),
	)
}
