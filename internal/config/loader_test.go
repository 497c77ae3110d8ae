package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xui-shop-core/internal/errors"
)

func setRequired(t *testing.T) {
	t.Setenv("XUI_URL", "https://panel.example.com:2053/secret/")
	t.Setenv("XUI_USER", "admin")
	t.Setenv("XUI_PASSWORD", "hunter2")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://panel.example.com:2053/secret", cfg.Panel.URL)
	assert.True(t, cfg.Panel.InsecureTLS)
	assert.Equal(t, 5*time.Second, cfg.Panel.RequestTimeout)
	assert.Equal(t, 3, cfg.Login.Retries)
	assert.Equal(t, 10*time.Second, cfg.Login.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Login.Backoff)
	assert.Equal(t, time.Minute, cfg.Login.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Login.SessionMaxAge)
	assert.Equal(t, int64(6), cfg.Client.IPLimit)
	assert.Equal(t, "xtls-rprx-vision", cfg.Client.Flow)
	assert.Equal(t, 5*time.Minute, cfg.Client.CacheTTL)
	assert.Equal(t, 443, cfg.Link.Port)
	assert.Equal(t, "yahoo.com", cfg.Link.ServerName)
	assert.Equal(t, "chrome", cfg.Link.Fingerprint)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 6*time.Hour, cfg.Sync.Interval)
	assert.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Services, 3)
	assert.Equal(t, "standard", cfg.Services[0].Key)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("XUI_URL", "https://panel.example.com")
	t.Setenv("XUI_USER", "")
	t.Setenv("XUI_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *apperrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "panel", cfgErr.Section)
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_BACKEND", "memcached")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_BACKEND")
}

func TestLoadTariffOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TARIFF_OBHOD_INBOUND_ID", "12")
	t.Setenv("TARIFF_OBHOD_EMAIL_SUFFIX", "-alt")
	t.Setenv("TARIFF_STANDARD_VM_SERVER_HOST", "vm.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	byKey := map[string]int{}
	for i, s := range cfg.Services {
		byKey[s.Key] = i
	}
	obhod := cfg.Services[byKey["obhod"]]
	assert.Equal(t, 12, obhod.InboundID)
	assert.Equal(t, "-alt", obhod.EmailSuffix)
	assert.Equal(t, "vm.example.com", cfg.Services[byKey["standard_vm"]].ServerHost)
}

func TestLoadTariffOverrideNotNumeric(t *testing.T) {
	for _, raw := range []string{"one", "1x", "2 3", "1.5"} {
		t.Run(raw, func(t *testing.T) {
			setRequired(t)
			t.Setenv("TARIFF_STANDARD_INBOUND_ID", raw)

			_, err := Load()
			require.Error(t, err)
			var cfgErr *apperrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), "TARIFF_STANDARD_INBOUND_ID")
		})
	}
}

func TestLoadServicesFile(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "services.yaml")
	content := `services:
  - key: basic
    name: Basic
    inbound_id: 3
    protocol: vless
    visible: true
    sync_priority: 0
    plans:
      - key: 1m
        label: "1 month"
        days: 30
        amount_minor: 10000
  - key: extra
    name: Extra
    inbound_id: 4
    email_suffix: "-x"
    protocol: vmess
    auto_assign: true
    auto_assign_for: [basic]
    sync_priority: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SERVICES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "basic", cfg.Services[0].Key)
	assert.Equal(t, 3, cfg.Services[0].InboundID)
	require.Len(t, cfg.Services[0].Plans, 1)
	assert.Equal(t, 30, cfg.Services[0].Plans[0].Days)
	assert.Equal(t, int64(10000), cfg.Services[0].Plans[0].AmountMinor)
	assert.True(t, cfg.Services[1].AutoAssign)
	assert.Equal(t, []string{"basic"}, cfg.Services[1].AutoAssignFor)
}

func TestLoadServicesFileWithBadTrigger(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "services.json")
	content := `{"services": [{"key": "a", "inbound_id": 1, "auto_assign": true, "auto_assign_for": ["nope"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SERVICES_FILE", path)

	_, err := Load()
	require.Error(t, err)

	var cfgErr *apperrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "services", cfgErr.Section)
}
