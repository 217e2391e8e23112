package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "be-po-approvals", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 9086, cfg.Server.GRPCPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.False(t, cfg.Approval.RejectRequiresApprover)
	assert.Equal(t, 2*time.Second, cfg.NATS.PublishTimeout)
	assert.Equal(t, 256, cfg.NATS.QueueSize)
	assert.Equal(t, "postgres://postgres:@localhost:5432/procurement?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("APPROVAL_REJECT_REQUIRES_APPROVER", "true")
	t.Setenv("APPROVAL_SEED_FILE", "seed.yaml")
	t.Setenv("DB_NAME", "po")
	t.Setenv("NATS_PUBLISH_TIMEOUT", "500ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Approval.RejectRequiresApprover)
	assert.Equal(t, "seed.yaml", cfg.Approval.SeedFile)
	assert.Equal(t, "po", cfg.Database.Database)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.PublishTimeout)
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "unsupported store driver")
}
