package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cobrand/internal/storage/kv"
)

func TestConfigTmp_ParseDefaults(t *testing.T) {
	cfg, err := ConfigTmp{APIURL: "https://api.example.com"}.Parse()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, kv.BackendWAL, cfg.Store.Backend)
	assert.Equal(t, "./state", cfg.Store.Dir)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.Equal(t, 1, cfg.RateLimit.Burst)
	assert.Equal(t, ":8080", cfg.Dashboard.Addr)
	assert.Equal(t, "./state/certs", cfg.Dashboard.CertCacheDir)
	assert.Zero(t, cfg.Dashboard.RefreshInterval)
}

func TestConfigTmp_ParseErrors(t *testing.T) {
	base := func() ConfigTmp { return ConfigTmp{APIURL: "https://api.example.com"} }

	tests := []struct {
		name    string
		mutate  func(*ConfigTmp)
		wantKey string
	}{
		{name: "missing api url", mutate: func(c *ConfigTmp) { c.APIURL = "" }, wantKey: "api_url"},
		{name: "api url without scheme", mutate: func(c *ConfigTmp) { c.APIURL = "api.example.com" }, wantKey: "api_url"},
		{name: "bad timeout", mutate: func(c *ConfigTmp) { c.Timeout = "soon" }, wantKey: "timeout"},
		{name: "zero timeout", mutate: func(c *ConfigTmp) { c.Timeout = "0s" }, wantKey: "timeout"},
		{name: "unknown backend", mutate: func(c *ConfigTmp) { c.Store.Backend = "sqlite" }, wantKey: "store.backend"},
		{name: "redis without address", mutate: func(c *ConfigTmp) { c.Store.Backend = "redis" }, wantKey: "store.redis_addr"},
		{name: "negative retries", mutate: func(c *ConfigTmp) { c.Retry.MaxRetries = "-1" }, wantKey: "retry.max_retries"},
		{name: "bad rps", mutate: func(c *ConfigTmp) { c.RateLimit.RPS = "fast" }, wantKey: "rate_limit.rps"},
		{name: "bad refresh interval", mutate: func(c *ConfigTmp) { c.Dashboard.RefreshInterval = "often" }, wantKey: "dashboard.refresh_interval"},
		{name: "bad log dev", mutate: func(c *ConfigTmp) { c.Log.Dev = "maybe" }, wantKey: "log.dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := base()
			tt.mutate(&tmp)

			_, err := tmp.Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "'"+tt.wantKey+"'")
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cobrand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://api.example.com
tenant: T1
timeout: 10s
store:
  backend: file
  dir: /tmp/cobrand
retry:
  max_retries: "2"
  initial_interval: 250ms
rate_limit:
  rps: "5"
  burst: "10"
dashboard:
  addr: ":9090"
  tls_domains: [wallet.example.com]
  refresh_interval: 1m
log:
  level: debug
  dev: "true"
`), 0o600))

	tmp, err := ReadFile(path)
	require.NoError(t, err)
	cfg, err := tmp.Parse()
	require.NoError(t, err)

	assert.Equal(t, "T1", cfg.Tenant)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, kv.BackendFile, cfg.Store.Backend)
	assert.Equal(t, "/tmp/cobrand", cfg.Store.KV().Dir)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"wallet.example.com"}, cfg.Dashboard.TLSDomains)
	assert.Equal(t, time.Minute, cfg.Dashboard.RefreshInterval)
	assert.True(t, cfg.Log.Dev)

	missing, err := ReadFile(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing.APIURL)
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	in := ConfigTmp{APIURL: "https://api.example.com", Tenant: "T2", Store: StoreTmp{Backend: "wal"}}

	require.NoError(t, WriteFile(path, in))
	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("COBRAND_API_URL", "https://env.example.com")
	t.Setenv("COBRAND_STORE_BACKEND", "memory")
	t.Setenv("COBRAND_TLS_DOMAINS", "a.example.com, b.example.com")

	tmp := ConfigTmp{APIURL: "https://file.example.com", Tenant: "T1"}
	require.NoError(t, tmp.ApplyEnv())

	assert.Equal(t, "https://env.example.com", tmp.APIURL)
	assert.Equal(t, "T1", tmp.Tenant)
	assert.Equal(t, "memory", tmp.Store.Backend)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, tmp.Dashboard.TLSDomains)
}

func TestFlags_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cobrand.yaml")
	require.NoError(t, WriteFile(path, ConfigTmp{APIURL: "https://file.example.com", Tenant: "T1"}))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COBRAND_LOG_LEVEL=warn\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("COBRAND_LOG_LEVEL") })

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-env-file", envFile, "-tenant", "T9", "-store", "memory"}))

	cfg, err := flags.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.APIURL)
	assert.Equal(t, "T9", cfg.Tenant)
	assert.Equal(t, kv.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}
