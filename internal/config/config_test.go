package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("SHOPFLOW_SECURITY__JWT_SECRET", "s3cret")
	t.Setenv("SHOPFLOW_TABLES__CARTS", "carts-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "carts-test", cfg.Tables.Carts)
	assert.Equal(t, "orders", cfg.Tables.Orders)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.Equal(t, 100.0, cfg.Discovery.DefaultRadiusKm)
	assert.Equal(t, 20, cfg.Discovery.DefaultPageSize)
	assert.Equal(t, 48*time.Hour, cfg.Idempotency.TTL)
	assert.ElementsMatch(t, []string{"groceries", "electronics", "clothing", "farm"}, cfg.Discovery.Categories)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
security:
  jwt_secret: from-file
discovery:
  default_page_size: 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Security.JWTSecret)
	assert.Equal(t, 5, cfg.Discovery.DefaultPageSize)
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}
