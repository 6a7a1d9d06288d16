// Package config loads the cobrand client configuration from a YAML file,
// a .env file, environment variables and command line flags, in that order
// of increasing precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/cobrand/internal/storage/kv"
)

const (
	DefaultPath    = "cobrand.yaml"
	defaultTimeout = 30 * time.Second
	defaultStore   = kv.BackendWAL
	defaultDir     = "./state"
	defaultAddr    = ":8080"
)

// Config is the parsed configuration.
type Config struct {
	APIURL    string
	Tenant    string
	Timeout   time.Duration
	Store     StoreConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Dashboard DashboardConfig
	Log       LogConfig
}

type StoreConfig struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

// KV converts the store section for kv.New.
func (s StoreConfig) KV() kv.Config {
	return kv.Config{
		Backend:       s.Backend,
		Dir:           s.Dir,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		Namespace:     s.Namespace,
	}
}

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type DashboardConfig struct {
	Addr            string
	TLSDomains      []string
	CertCacheDir    string
	RefreshInterval time.Duration
}

type LogConfig struct {
	Level  string
	Dev    bool
	File   string
	MaxAge time.Duration
}

// ConfigTmp is the raw YAML document. Values are kept as strings so parse
// errors can name the offending key.
type ConfigTmp struct {
	APIURL    string       `yaml:"api_url" env:"COBRAND_API_URL"`
	Tenant    string       `yaml:"tenant,omitempty" env:"COBRAND_TENANT"`
	Timeout   string       `yaml:"timeout,omitempty" env:"COBRAND_TIMEOUT"`
	Store     StoreTmp     `yaml:"store,omitempty"`
	Retry     RetryTmp     `yaml:"retry,omitempty"`
	RateLimit RateLimitTmp `yaml:"rate_limit,omitempty"`
	Dashboard DashboardTmp `yaml:"dashboard,omitempty"`
	Log       LogTmp       `yaml:"log,omitempty"`
}

type StoreTmp struct {
	Backend       string `yaml:"backend,omitempty" env:"COBRAND_STORE_BACKEND"`
	Dir           string `yaml:"dir,omitempty" env:"COBRAND_STORE_DIR"`
	RedisAddr     string `yaml:"redis_addr,omitempty" env:"COBRAND_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password,omitempty" env:"COBRAND_REDIS_PASSWORD"`
	RedisDB       string `yaml:"redis_db,omitempty" env:"COBRAND_REDIS_DB"`
	Namespace     string `yaml:"namespace,omitempty" env:"COBRAND_STORE_NAMESPACE"`
}

type RetryTmp struct {
	MaxRetries      string `yaml:"max_retries,omitempty" env:"COBRAND_RETRY_MAX"`
	InitialInterval string `yaml:"initial_interval,omitempty" env:"COBRAND_RETRY_INTERVAL"`
}

type RateLimitTmp struct {
	RPS   string `yaml:"rps,omitempty" env:"COBRAND_RATE_LIMIT_RPS"`
	Burst string `yaml:"burst,omitempty" env:"COBRAND_RATE_LIMIT_BURST"`
}

type DashboardTmp struct {
	Addr            string   `yaml:"addr,omitempty" env:"COBRAND_DASHBOARD_ADDR"`
	TLSDomains      []string `yaml:"tls_domains,omitempty"`
	CertCacheDir    string   `yaml:"cert_cache_dir,omitempty" env:"COBRAND_CERT_CACHE_DIR"`
	RefreshInterval string   `yaml:"refresh_interval,omitempty" env:"COBRAND_REFRESH_INTERVAL"`
}

type LogTmp struct {
	Level  string `yaml:"level,omitempty" env:"COBRAND_LOG_LEVEL"`
	Dev    string `yaml:"dev,omitempty" env:"COBRAND_LOG_DEV"`
	File   string `yaml:"file,omitempty" env:"COBRAND_LOG_FILE"`
	MaxAge string `yaml:"max_age,omitempty" env:"COBRAND_LOG_MAX_AGE"`
}

// Flags are the command line overrides shared by every subcommand.
type Flags struct {
	Path    *string
	EnvFile *string
	APIURL  *string
	Tenant  *string
	Store   *string
	Verbose *bool
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Path:    fs.String("config", DefaultPath, "path to yaml config"),
		EnvFile: fs.String("env-file", ".env", "optional dotenv file with COBRAND_* variables"),
		APIURL:  fs.String("api-url", "", "backend base url, overrides the config file"),
		Tenant:  fs.String("tenant", "", "tenant id, overrides the config file"),
		Store:   fs.String("store", "", "state backend: memory, file, wal or redis"),
		Verbose: fs.Bool("v", false, "debug logging"),
	}
}

// Load reads the configuration described by the parsed flags.
func (f *Flags) Load() (Config, error) {
	LoadDotEnv(*f.EnvFile)

	tmp, err := ReadFile(*f.Path)
	if err != nil {
		return Config{}, err
	}
	if err := tmp.ApplyEnv(); err != nil {
		return Config{}, err
	}

	if *f.APIURL != "" {
		tmp.APIURL = *f.APIURL
	}
	if *f.Tenant != "" {
		tmp.Tenant = *f.Tenant
	}
	if *f.Store != "" {
		tmp.Store.Backend = *f.Store
	}
	if *f.Verbose {
		tmp.Log.Level = "debug"
	}

	return tmp.Parse()
}

// LoadDotEnv loads path into the environment when it exists. Variables that
// are already set win.
func LoadDotEnv(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// ReadFile decodes the YAML file at path. A missing file yields an empty
// document so the environment alone can configure the client.
func ReadFile(path string) (ConfigTmp, error) {
	var tmp ConfigTmp
	if path == "" {
		return tmp, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tmp, nil
		}
		return tmp, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return tmp, errors.Wrapf(err, "decode config %s", path)
	}
	return tmp, nil
}

// WriteFile stores tmp as YAML at path.
func WriteFile(path string, tmp ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// ApplyEnv overrides fields with the COBRAND_* variables that are set.
func (c *ConfigTmp) ApplyEnv() error {
	var env ConfigTmp
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return errors.Wrap(err, "decode environment")
	}

	override := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	override(&c.APIURL, env.APIURL)
	override(&c.Tenant, env.Tenant)
	override(&c.Timeout, env.Timeout)
	override(&c.Store.Backend, env.Store.Backend)
	override(&c.Store.Dir, env.Store.Dir)
	override(&c.Store.RedisAddr, env.Store.RedisAddr)
	override(&c.Store.RedisPassword, env.Store.RedisPassword)
	override(&c.Store.RedisDB, env.Store.RedisDB)
	override(&c.Store.Namespace, env.Store.Namespace)
	override(&c.Retry.MaxRetries, env.Retry.MaxRetries)
	override(&c.Retry.InitialInterval, env.Retry.InitialInterval)
	override(&c.RateLimit.RPS, env.RateLimit.RPS)
	override(&c.RateLimit.Burst, env.RateLimit.Burst)
	override(&c.Dashboard.Addr, env.Dashboard.Addr)
	override(&c.Dashboard.CertCacheDir, env.Dashboard.CertCacheDir)
	override(&c.Dashboard.RefreshInterval, env.Dashboard.RefreshInterval)
	override(&c.Log.Level, env.Log.Level)
	override(&c.Log.Dev, env.Log.Dev)
	override(&c.Log.File, env.Log.File)
	override(&c.Log.MaxAge, env.Log.MaxAge)
	if domains := os.Getenv("COBRAND_TLS_DOMAINS"); domains != "" {
		c.Dashboard.TLSDomains = splitList(domains)
	}
	return nil
}

// Parse validates the raw document and applies defaults.
func (c ConfigTmp) Parse() (Config, error) {
	cfg := Config{
		APIURL: strings.TrimSpace(c.APIURL),
		Tenant: strings.TrimSpace(c.Tenant),
		Store: StoreConfig{
			Backend:       strings.ToLower(strings.TrimSpace(c.Store.Backend)),
			Dir:           c.Store.Dir,
			RedisAddr:     c.Store.RedisAddr,
			RedisPassword: c.Store.RedisPassword,
			Namespace:     c.Store.Namespace,
		},
		Dashboard: DashboardConfig{
			Addr:         c.Dashboard.Addr,
			TLSDomains:   c.Dashboard.TLSDomains,
			CertCacheDir: c.Dashboard.CertCacheDir,
		},
		Log: LogConfig{
			Level: c.Log.Level,
			File:  c.Log.File,
		},
	}

	if cfg.APIURL == "" {
		return Config{}, fmt.Errorf("missing 'api_url' param in yaml config (or COBRAND_API_URL)")
	}
	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		return Config{}, fmt.Errorf("incorrect 'api_url' param in yaml config: %s, must start with http:// or https://", cfg.APIURL)
	}

	var err error
	if cfg.Timeout, err = parseDuration("timeout", c.Timeout, defaultTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("incorrect 'timeout' param in yaml config: %s, must be positive", c.Timeout)
	}

	switch cfg.Store.Backend {
	case "":
		cfg.Store.Backend = defaultStore
	case kv.BackendMemory, kv.BackendFile, kv.BackendWAL, kv.BackendRedis:
	default:
		return Config{}, fmt.Errorf("incorrect 'store.backend' param in yaml config: %s, must be one of memory, file, wal, redis", c.Store.Backend)
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = defaultDir
	}
	if cfg.Store.Backend == kv.BackendRedis && cfg.Store.RedisAddr == "" {
		return Config{}, fmt.Errorf("missing 'store.redis_addr' param in yaml config, required by the redis backend")
	}
	if cfg.Store.RedisDB, err = parseInt("store.redis_db", c.Store.RedisDB, 0); err != nil {
		return Config{}, err
	}

	if cfg.Retry.MaxRetries, err = parseInt("retry.max_retries", c.Retry.MaxRetries, 0); err != nil {
		return Config{}, err
	}
	if cfg.Retry.InitialInterval, err = parseDuration("retry.initial_interval", c.Retry.InitialInterval, 0); err != nil {
		return Config{}, err
	}

	if c.RateLimit.RPS != "" {
		if cfg.RateLimit.RPS, err = strconv.ParseFloat(c.RateLimit.RPS, 64); err != nil || cfg.RateLimit.RPS < 0 {
			return Config{}, fmt.Errorf("incorrect 'rate_limit.rps' param in yaml config (must be a non-negative number): %s", c.RateLimit.RPS)
		}
	}
	if cfg.RateLimit.Burst, err = parseInt("rate_limit.burst", c.RateLimit.Burst, 1); err != nil {
		return Config{}, err
	}

	if cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = defaultAddr
	}
	if cfg.Dashboard.RefreshInterval, err = parseDuration("dashboard.refresh_interval", c.Dashboard.RefreshInterval, 0); err != nil {
		return Config{}, err
	}
	if cfg.Dashboard.CertCacheDir == "" {
		cfg.Dashboard.CertCacheDir = cfg.Store.Dir + "/certs"
	}

	if c.Log.Dev != "" {
		if cfg.Log.Dev, err = strconv.ParseBool(c.Log.Dev); err != nil {
			return Config{}, fmt.Errorf("incorrect 'log.dev' param in yaml config (must be true or false): %s", c.Log.Dev)
		}
	}
	if cfg.Log.MaxAge, err = parseDuration("log.max_age", c.Log.MaxAge, 0); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseDuration(key, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (correct format is 30s, 5m): %s", key, raw)
	}
	return d, nil
}

func parseInt(key, raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be a non-negative integer): %s", key, raw)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
