package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pool.db")), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestNewPool_AppliesLimits(t *testing.T) {
	pool, err := NewPool(openTestDB(t), Options{
		MaxOpenConns:    3,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Ping(context.Background()))
	stats := pool.Stats()
	assert.Equal(t, 3, stats.MaxOpenConnections)
}

func TestNewPool_NilDB(t *testing.T) {
	_, err := NewPool(nil, Options{}, nil)
	require.Error(t, err)
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool, err := NewPool(openTestDB(t), Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Error(t, pool.Ping(context.Background()))
}
