package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/constants"
	apperrors "xui-shop-core/internal/errors"
)

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("XUI_INSECURE_TLS", true)
	v.SetDefault("XUI_REQUEST_TIMEOUT_SEC", constants.DefaultRequestTimeout)
	v.SetDefault("XUI_LOGIN_RETRIES", constants.DefaultLoginRetries)
	v.SetDefault("XUI_LOGIN_TIMEOUT", constants.DefaultLoginTimeout)
	v.SetDefault("XUI_LOGIN_BACKOFF_MS", constants.DefaultLoginBackoff)
	v.SetDefault("XUI_LOGIN_COOLDOWN_SEC", constants.DefaultLoginCooldown)
	v.SetDefault("XUI_SESSION_MAX_AGE_SEC", constants.DefaultSessionMaxAge)
	v.SetDefault("CLIENT_INFO_TTL_SEC", constants.DefaultClientCacheTTL)
	v.SetDefault("XUI_CLIENT_IP_LIMIT", constants.DefaultClientIPLimit)
	v.SetDefault("XUI_DEFAULT_FLOW", constants.DefaultVlessFlow)
	v.SetDefault("SERVER_HOST", constants.DefaultServerHost)
	v.SetDefault("SERVER_PORT", constants.DefaultServerPort)
	v.SetDefault("REALITY_PBK", "")
	v.SetDefault("REALITY_SID", "")
	v.SetDefault("REALITY_SNI", constants.DefaultRealitySNI)
	v.SetDefault("REALITY_FP", constants.DefaultRealityFP)
	v.SetDefault("SERVICES_FILE", "")
	v.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REGISTRY_DB_PATH", "data/users.db")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_TOKEN", "")
	v.SetDefault("SYNC_INTERVAL_SEC", constants.DefaultSyncInterval)

	// Define environment variables
	v.BindEnv("XUI_URL")
	v.BindEnv("XUI_USER")
	v.BindEnv("XUI_PASSWORD")

	cfg := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  strings.TrimSpace(v.GetString("LOG_FILE")),
		Panel: PanelConfig{
			URL:            strings.TrimRight(strings.TrimSpace(v.GetString("XUI_URL")), "/"),
			User:           strings.TrimSpace(v.GetString("XUI_USER")),
			Password:       strings.TrimSpace(v.GetString("XUI_PASSWORD")),
			InsecureTLS:    v.GetBool("XUI_INSECURE_TLS"),
			RequestTimeout: seconds(v.GetInt("XUI_REQUEST_TIMEOUT_SEC")),
		},
		Login: LoginConfig{
			Retries:       v.GetInt("XUI_LOGIN_RETRIES"),
			Timeout:       seconds(v.GetInt("XUI_LOGIN_TIMEOUT")),
			Backoff:       time.Duration(v.GetInt("XUI_LOGIN_BACKOFF_MS")) * time.Millisecond,
			Cooldown:      seconds(v.GetInt("XUI_LOGIN_COOLDOWN_SEC")),
			SessionMaxAge: seconds(v.GetInt("XUI_SESSION_MAX_AGE_SEC")),
		},
		Client: ClientConfig{
			IPLimit:  v.GetInt64("XUI_CLIENT_IP_LIMIT"),
			Flow:     strings.TrimSpace(v.GetString("XUI_DEFAULT_FLOW")),
			CacheTTL: seconds(v.GetInt("CLIENT_INFO_TTL_SEC")),
		},
		Link: LinkConfig{
			Host:        strings.TrimSpace(v.GetString("SERVER_HOST")),
			Port:        v.GetInt("SERVER_PORT"),
			PublicKey:   strings.TrimSpace(v.GetString("REALITY_PBK")),
			ShortID:     strings.TrimSpace(v.GetString("REALITY_SID")),
			ServerName:  strings.TrimSpace(v.GetString("REALITY_SNI")),
			Fingerprint: strings.TrimSpace(v.GetString("REALITY_FP")),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("CACHE_BACKEND"))),
		},
		Redis: RedisConfig{
			Addr:        strings.TrimSpace(v.GetString("REDIS_ADDR")),
			Password:    v.GetString("REDIS_PASSWORD"),
			DB:          v.GetInt("REDIS_DB"),
			DialTimeout: 5 * time.Second,
			Timeout:     3 * time.Second,
		},
		Registry: RegistryConfig{
			Path: strings.TrimSpace(v.GetString("REGISTRY_DB_PATH")),
		},
		HTTP: HTTPConfig{
			Addr:  strings.TrimSpace(v.GetString("HTTP_ADDR")),
			Token: strings.TrimSpace(v.GetString("HTTP_TOKEN")),
		},
		Sync: SyncConfig{
			Interval: seconds(v.GetInt("SYNC_INTERVAL_SEC")),
		},
	}

	// Services come from a file when one is given, otherwise from the built-in catalog
	services, err := loadServices(v, strings.TrimSpace(v.GetString("SERVICES_FILE")))
	if err != nil {
		return nil, err
	}
	cfg.Services = services

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadServices reads the service list and applies TARIFF_<KEY>_* overrides
func loadServices(env *viper.Viper, path string) ([]catalog.Service, error) {
	services := catalog.Defaults()

	if path != "" {
		fv := viper.New()
		fv.SetConfigFile(path)
		if err := fv.ReadInConfig(); err != nil {
			return nil, &apperrors.ConfigError{Section: "services", Message: fmt.Sprintf("failed to read %s: %v", path, err)}
		}
		var fromFile []catalog.Service
		if err := fv.UnmarshalKey("services", &fromFile); err != nil {
			return nil, &apperrors.ConfigError{Section: "services", Message: fmt.Sprintf("failed to parse %s: %v", path, err)}
		}
		if len(fromFile) == 0 {
			return nil, &apperrors.ConfigError{Section: "services", Message: fmt.Sprintf("%s defines no services", path)}
		}
		services = fromFile
	}

	for i := range services {
		prefix := "TARIFF_" + strings.ToUpper(services[i].Key) + "_"

		if raw := strings.TrimSpace(env.GetString(prefix + "INBOUND_ID")); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return nil, &apperrors.ConfigError{Section: "services", Message: fmt.Sprintf("%sINBOUND_ID is not a number: %q", prefix, raw)}
			}
			services[i].InboundID = id
		}
		if suffix := strings.TrimSpace(env.GetString(prefix + "EMAIL_SUFFIX")); suffix != "" {
			services[i].EmailSuffix = suffix
		}
		if host := strings.TrimSpace(env.GetString(prefix + "SERVER_HOST")); host != "" {
			services[i].ServerHost = host
		}
	}

	return services, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	// Validate panel configuration
	if cfg.Panel.URL == "" {
		return &apperrors.ConfigError{Section: "panel", Message: "XUI_URL is required"}
	}
	if !strings.HasPrefix(cfg.Panel.URL, "http://") && !strings.HasPrefix(cfg.Panel.URL, "https://") {
		return &apperrors.ConfigError{Section: "panel", Message: "XUI_URL must start with http:// or https://"}
	}
	if cfg.Panel.User == "" {
		return &apperrors.ConfigError{Section: "panel", Message: "XUI_USER is required"}
	}
	if cfg.Panel.Password == "" {
		return &apperrors.ConfigError{Section: "panel", Message: "XUI_PASSWORD is required"}
	}
	if cfg.Panel.RequestTimeout <= 0 {
		return &apperrors.ConfigError{Section: "panel", Message: "XUI_REQUEST_TIMEOUT_SEC must be positive"}
	}

	if cfg.Login.Retries < 1 {
		return &apperrors.ConfigError{Section: "login", Message: "XUI_LOGIN_RETRIES must be at least 1"}
	}
	if cfg.Login.Timeout <= 0 {
		return &apperrors.ConfigError{Section: "login", Message: "XUI_LOGIN_TIMEOUT must be positive"}
	}
	if cfg.Login.Backoff < 0 || cfg.Login.Cooldown < 0 || cfg.Login.SessionMaxAge < 0 {
		return &apperrors.ConfigError{Section: "login", Message: "backoff, cooldown and session age must not be negative"}
	}

	if cfg.Client.IPLimit < 1 {
		return &apperrors.ConfigError{Section: "client", Message: "XUI_CLIENT_IP_LIMIT must be at least 1"}
	}
	if cfg.Client.CacheTTL < 0 {
		return &apperrors.ConfigError{Section: "client", Message: "CLIENT_INFO_TTL_SEC must not be negative"}
	}

	if cfg.Link.Port < 1 || cfg.Link.Port > 65535 {
		return &apperrors.ConfigError{Section: "link", Message: fmt.Sprintf("SERVER_PORT out of range: %d", cfg.Link.Port)}
	}

	switch cfg.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if cfg.Redis.Addr == "" {
			return &apperrors.ConfigError{Section: "redis", Message: "REDIS_ADDR is required for the redis cache backend"}
		}
	default:
		return &apperrors.ConfigError{Section: "cache", Message: fmt.Sprintf("unknown CACHE_BACKEND %q", cfg.Cache.Backend)}
	}

	if cfg.Registry.Path == "" {
		return &apperrors.ConfigError{Section: "registry", Message: "REGISTRY_DB_PATH is required"}
	}
	if cfg.Sync.Interval < 0 {
		return &apperrors.ConfigError{Section: "sync", Message: "SYNC_INTERVAL_SEC must not be negative"}
	}

	if _, err := catalog.New(cfg.Services); err != nil {
		return &apperrors.ConfigError{Section: "services", Message: err.Error()}
	}

	return nil
}
