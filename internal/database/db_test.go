package database

import (
	"path/filepath"
	"testing"

	"erequisition/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewConnection_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := NewConnection(cfg, zap.NewNop())
	require.NoError(t, err)

	for _, table := range []string{"users", "requisitions", "requisition_attachments", "leave_requests", "audit_events", "notifications"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	// re-running is a no-op
	require.NoError(t, Migrate(db))
}

func TestNewConnection_UnknownDriver(t *testing.T) {
	_, err := NewConnection(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}
