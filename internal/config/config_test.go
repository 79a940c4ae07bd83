package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.PaymentsEnabled())
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "blogshop.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
server:
  addr: ":9000"
  rate_limit: 2
session:
  ttl: 2h
database:
  path: /tmp/from-yaml.db
`), 0o644))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("BLOGSHOP_DB_PATH=/tmp/from-dotenv.db\n"), 0o644))
	t.Setenv("BLOGSHOP_ADDR", ":9100")
	t.Setenv("BLOGSHOP_DB_PATH", "")
	os.Unsetenv("BLOGSHOP_DB_PATH")

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 2.0, cfg.Server.RateLimit)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Database.Path)
}

func TestLoadRejectsPaymentsWithoutSecret(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_x")
	t.Setenv("BLOGSHOP_CHECKOUT_SECRET", "")
	_, err := Load("", "")
	assert.Error(t, err)

	t.Setenv("BLOGSHOP_CHECKOUT_SECRET", "s3cret")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.True(t, cfg.PaymentsEnabled())
}

func TestLoadBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("server: [unclosed"), 0o644))
	_, err := Load(p, "")
	assert.Error(t, err)
}

func TestLoadGatewayRetrySettings(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Payment.RetryBackoff)
	assert.Zero(t, cfg.Payment.StripeRetries)

	p := filepath.Join(t.TempDir(), "blogshop.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
payment:
  retry_backoff: 2s
  stripe_max_retries: 1
`), 0o644))
	t.Setenv("BLOGSHOP_GATEWAY_BACKOFF", "750ms")
	cfg, err = Load(p, "")
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Payment.RetryBackoff)
	assert.EqualValues(t, 1, cfg.Payment.StripeRetries)

	t.Setenv("BLOGSHOP_GATEWAY_BACKOFF", "-1s")
	_, err = Load(p, "")
	assert.Error(t, err)
}
