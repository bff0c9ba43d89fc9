package walletd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"walletledger/native/payments"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walletd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "auth:\n  hmac_secret: s3cret\n"))
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "Asia/Kolkata", cfg.Timezone)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, 8, cfg.Ledger.MaxRetries)
	require.Equal(t, 10*time.Millisecond, cfg.Ledger.RetryBackoff.Duration)
	require.True(t, cfg.Wallet.MinWithdrawal.Equal(payments.DefaultMinimumWithdrawal))
	require.True(t, cfg.Wallet.DailyBonus.Equal(decimal.NewFromInt(1)))
	require.Equal(t, "admin", cfg.Auth.AdminRole)
	require.Equal(t, DefaultSettings().CollectionAddress, cfg.Settings.CollectionAddress)
	require.Equal(t, []string{"https://flipkart-invest.com"}, cfg.CORS.AllowedOrigins)
	require.False(t, cfg.Telemetry.Traces)
	require.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	require.Equal(t, 15*time.Second, cfg.Telemetry.MetricInterval.Duration)
}

func TestTelemetryConfigDrivesExporter(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
environment: prod
timezone: Asia/Kolkata
storage:
  backend: bolt
  path: /tmp/walletd.db
auth:
  hmac_secret: x
telemetry:
  endpoint: " collector:4318 "
  headers:
    tenant: wallet
  traces: true
  sample_ratio: 0.2
  metric_interval: 30s
`))
	require.NoError(t, err)

	loc, err := time.LoadLocation(cfg.Timezone)
	require.NoError(t, err)
	exp := cfg.Telemetry.exporterConfig(cfg.Environment, cfg.Storage.Backend, loc)
	require.Equal(t, "walletd", exp.ServiceName)
	require.Equal(t, "prod", exp.Environment)
	require.Equal(t, "collector:4318", exp.Endpoint)
	require.True(t, exp.Traces)
	require.False(t, exp.Metrics)
	require.Equal(t, 0.2, exp.SampleRatio)
	require.Equal(t, 30*time.Second, exp.MetricInterval)
	require.Equal(t, map[string]string{"tenant": "wallet"}, exp.Headers)
	require.Equal(t, map[string]string{
		"ledger.storage_backend": BackendBolt,
		"ledger.timezone":        "Asia/Kolkata",
	}, exp.Attributes)
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	t.Setenv("WALLETD_TEST_SECRET", "  from-env  ")
	cfg, err := LoadConfig(writeConfig(t, `
storage:
  backend: LevelDB
  path: /tmp/ledger
wallet:
  min_withdrawal: "750.50"
auth:
  hmac_secret_env: WALLETD_TEST_SECRET
`))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)
	require.Equal(t, BackendLevelDB, cfg.Storage.Backend)
	require.True(t, cfg.Wallet.MinWithdrawal.Equal(decimal.RequireFromString("750.50")))
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"missing secret":     "listen: \":1\"\n",
		"unknown field":      "auth:\n  hmac_secret: x\nbogus: 1\n",
		"unknown backend":    "auth:\n  hmac_secret: x\nstorage:\n  backend: redis\n",
		"bolt without path":  "auth:\n  hmac_secret: x\nstorage:\n  backend: bolt\n",
		"sqlite without dsn": "auth:\n  hmac_secret: x\nstorage:\n  backend: sqlite\n",
		"bad timezone":       "auth:\n  hmac_secret: x\ntimezone: Mars/Olympus\n",
		"bad duration":       "auth:\n  hmac_secret: x\nledger:\n  retry_backoff: soon\n",
		"negative bonus":     "auth:\n  hmac_secret: x\nwallet:\n  daily_bonus: -1\n",
		"bad support email":  "auth:\n  hmac_secret: x\nsettings:\n  support:\n    email: nope\n",
		"bad sample ratio":   "auth:\n  hmac_secret: x\ntelemetry:\n  sample_ratio: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestBundledConfigLoads(t *testing.T) {
	t.Setenv("WALLETD_HMAC_SECRET", "bundled")
	cfg, err := LoadConfig("config.yaml")
	require.NoError(t, err)
	require.Equal(t, BackendBolt, cfg.Storage.Backend)
	require.Equal(t, "bundled", cfg.Auth.HMACSecret)
	require.Empty(t, cfg.Telemetry.Endpoint)
	require.False(t, cfg.Telemetry.Metrics)
}
