package config

import (
	"time"

	"xui-shop-core/internal/catalog"
)

// Config represents the application configuration
type Config struct {
	Panel    PanelConfig       `mapstructure:"panel"`
	Login    LoginConfig       `mapstructure:"login"`
	Client   ClientConfig      `mapstructure:"client"`
	Link     LinkConfig        `mapstructure:"link"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Registry RegistryConfig    `mapstructure:"registry"`
	HTTP     HTTPConfig        `mapstructure:"http"`
	Sync     SyncConfig        `mapstructure:"sync"`
	Services []catalog.Service `mapstructure:"services"`
	LogLevel string            `mapstructure:"log_level"`
	LogFile  string            `mapstructure:"log_file"`
}

// PanelConfig holds the panel address and credentials
type PanelConfig struct {
	URL            string        `mapstructure:"url"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	InsecureTLS    bool          `mapstructure:"insecure_tls"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoginConfig controls session acquisition
type LoginConfig struct {
	Retries       int           `mapstructure:"retries"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Backoff       time.Duration `mapstructure:"backoff"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SessionMaxAge time.Duration `mapstructure:"session_max_age"`
}

// ClientConfig holds client policy and lookup cache settings
type ClientConfig struct {
	IPLimit  int64         `mapstructure:"ip_limit"`
	Flow     string        `mapstructure:"flow"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LinkConfig holds fallbacks used when inbound data is incomplete
type LinkConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	PublicKey   string `mapstructure:"public_key"`
	ShortID     string `mapstructure:"short_id"`
	ServerName  string `mapstructure:"server_name"`
	Fingerprint string `mapstructure:"fingerprint"`
}

// CacheConfig selects the cache backend
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
}

// RedisConfig holds the redis connection used by the redis cache backend
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RegistryConfig points at the local user registry
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig holds the caller API settings
type HTTPConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
}

// SyncConfig controls the periodic reconcile loop; zero interval disables it
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)
