package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixledger/internal/domain"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("QR_SECRET", "qr")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Ledger.RejectPastStart)
	assert.Equal(t, 10, cfg.Ledger.MintRateLimit)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.ReconcileInterval)
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("MINT_RATE_WINDOW", "30s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Ledger.MintRateWindow)
}

func TestNew_Postgres(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_DRIVER", "postgres")

	_, err := New()
	assert.ErrorContains(t, err, "missing POSTGRES_USER")

	t.Setenv("POSTGRES_USER", "tix")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "ledger")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "postgres://tix:pw@localhost:5432/ledger?sslmode=disable", cfg.Postgres.DSN())
}

func TestNew_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"unknown storage": {"STORAGE_DRIVER", "mongo"},
		"bad port":        {"SERVER_PORT", "eighty"},
		"bad duration":    {"OUTBOX_INTERVAL", "soon"},
		"negative window": {"MINT_RATE_WINDOW", "-1s"},
		"bad level":       {"LOG_LEVEL", "loud"},
		"missing secret":  {"JWT_SECRET", ""},
	}

	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(kv[0], kv[1])

			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestLoadBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
admins: [root]
organizers: [org]
grants:
  - account: gate
    role: operator
    organizer: org
    event_id: 7
signers:
  - organizer: org
    public_key: abcd
`), 0o600))

	b, err := LoadBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"root"}, b.Admins)
	require.Len(t, b.Grants, 1)
	assert.Equal(t, domain.RoleOperator, b.Grants[0].Role)
	require.NotNil(t, b.Grants[0].EventID)
	assert.Equal(t, int64(7), *b.Grants[0].EventID)
	assert.Equal(t, "abcd", b.Signers[0].PublicKey)

	empty, err := LoadBootstrap("")
	require.NoError(t, err)
	assert.Empty(t, empty.Admins)

	require.NoError(t, os.WriteFile(path, []byte("admin: [typo]\n"), 0o600))
	_, err = LoadBootstrap(path)
	assert.Error(t, err, "unknown keys are rejected")
}
