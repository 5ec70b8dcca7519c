package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		JWTSecret:            "secure-secret-at-least-32-chars-long!!",
		Port:                 "8460",
		DBPassword:           "secure-password",
		DBSSLMode:            "require",
		Env:                  "development",
		ChatHistorySize:      50,
		PresenceTTLSeconds:   30,
		PresenceReconcileSec: 2,
		ReportRateLimit:      5,
		ReportRateWindowMin:  10,
		ChatRateLimit:        15,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid development config", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"zero history size", func(c *Config) { c.ChatHistorySize = 0 }, true},
		{"negative presence ttl", func(c *Config) { c.PresenceTTLSeconds = -1 }, true},
		{"zero reconcile interval", func(c *Config) { c.PresenceReconcileSec = 0 }, true},
		{"production with default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "your-secret-key-change-in-production"
		}, true},
		{"production with short secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "short"
		}, true},
		{"production with default db password", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "password"
		}, true},
		{"prod alias enforced too", func(c *Config) {
			c.Env = "prod"
			c.DBPassword = ""
		}, true},
		{"production fully hardened", func(c *Config) {
			c.Env = "production"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	c := validConfig()

	assert.Equal(t, 30*time.Second, c.PresenceTTL())
	assert.Equal(t, 2*time.Second, c.PresenceReconcileInterval())
	assert.Equal(t, 10*time.Minute, c.ReportRateWindow())
}
