package db

import (
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/tempo/internal/config"
	"github.com/zulandar/tempo/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DatabaseConfig
		wantAddr string
	}{
		{
			name:     "no password",
			cfg:      config.DatabaseConfig{User: "root", Host: "127.0.0.1", Port: 3306, Name: "tempo"},
			wantAddr: "127.0.0.1:3306",
		},
		{
			name:     "with password",
			cfg:      config.DatabaseConfig{User: "tempo", Password: "p@ss:word", Host: "db.internal", Port: 3307, Name: "tempo_prod"},
			wantAddr: "db.internal:3307",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := gomysql.ParseDSN(DSN(tt.cfg))
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.User, parsed.User)
			assert.Equal(t, tt.cfg.Password, parsed.Passwd)
			assert.Equal(t, "tcp", parsed.Net)
			assert.Equal(t, tt.wantAddr, parsed.Addr)
			assert.Equal(t, tt.cfg.Name, parsed.DBName)
			assert.True(t, parsed.ParseTime)
			assert.Equal(t, time.UTC, parsed.Loc)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestConnect_Error(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server.
	_, err := Connect(config.DatabaseConfig{User: "root", Host: "127.0.0.1", Port: 1, Name: "nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: connect to")
}

func TestAllModels_Count(t *testing.T) {
	assert.Len(t, AllModels(), 4)
}

func TestAutoMigrate_SQLite(t *testing.T) {
	gormDB, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(gormDB))

	for _, m := range AllModels() {
		assert.True(t, gormDB.Migrator().HasTable(m), "missing table for %T", m)
	}
	assert.True(t, gormDB.Migrator().HasIndex(&models.Block{}, "idx_block_order"))
}
