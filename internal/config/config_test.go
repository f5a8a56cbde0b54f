package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	base := Config{
		Port:      "8640",
		JWTSecret: "a-development-secret",
		Env:       "development",
	}

	t.Run("development accepts short secret", func(t *testing.T) {
		cfg := base
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing port", func(t *testing.T) {
		cfg := base
		cfg.Port = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := base
		cfg.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("production rejects default secret", func(t *testing.T) {
		cfg := base
		cfg.Env = "production"
		cfg.JWTSecret = "your-secret-key-change-in-production"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production rejects short secret", func(t *testing.T) {
		cfg := base
		cfg.Env = "production"
		cfg.JWTSecret = "short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production rejects weak db password", func(t *testing.T) {
		cfg := base
		cfg.Env = "production"
		cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
		cfg.DBPassword = "password"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production accepts hardened config", func(t *testing.T) {
		cfg := base
		cfg.Env = "production"
		cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
		cfg.DBPassword = "s0mething-actually-strong"
		cfg.DBSSLMode = "require"
		assert.NoError(t, cfg.Validate())
	})
}
