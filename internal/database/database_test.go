package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/draw-guess/internal/config"
	"github.com/wfunc/draw-guess/internal/models"
	"go.uber.org/zap"
)

func sqliteConfig(dsn string) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Enabled:      true,
		Driver:       "sqlite",
		DSN:          dsn,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "draw-guess.db")
	db, err := Open(sqliteConfig(dsn), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	require.NoError(t, AutoMigrate(db))
	assert.True(t, db.Migrator().HasTable(&models.Match{}))
	assert.True(t, db.Migrator().HasTable(&models.MatchPlayer{}))
	assert.True(t, db.Migrator().HasIndex(&models.Match{}, "idx_matches_room_ended"))

	// 迁移完成后锁文件被释放
	_, err = os.Stat(dsn + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	// 重复迁移不报错
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, DropAllTables(db))
	assert.False(t, db.Migrator().HasTable(&models.Match{}))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle", DSN: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestAutoMigrateNilDB(t *testing.T) {
	assert.Error(t, AutoMigrate(nil))
	assert.Error(t, DropAllTables(nil))
}

func TestGlobalDB(t *testing.T) {
	prev := DB
	t.Cleanup(func() { DB = prev })

	DB = nil
	assert.False(t, IsConnected())
	assert.NoError(t, Close())

	require.NoError(t, Init(sqliteConfig(filepath.Join(t.TempDir(), "global.db"))))
	assert.True(t, IsConnected())
	assert.Same(t, DB, GetDB())
	require.NoError(t, Close())
	assert.False(t, IsConnected())
}

func TestMigrationLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.db")

	lock, err := acquireMigrationLock(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".migration.lock")
	require.NoError(t, err)

	releaseMigrationLock(lock)
	_, err = os.Stat(path + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	releaseMigrationLock(nil)
}

func TestStaleLockIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.db")
	lockPath := path + ".migration.lock"
	require.NoError(t, os.WriteFile(lockPath, nil, 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	CleanupStaleLocks(path)
	_, err := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))

	lock, err := acquireMigrationLock(path)
	require.NoError(t, err)
	releaseMigrationLock(lock)
}

func TestParseLogLevel(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), parseLogLevel("silent"))
	loud := l.LogMode(parseLogLevel("info")).(*GormLogger)
	assert.NotEqual(t, l.logLevel, loud.logLevel)
	assert.Less(t, int(parseLogLevel("error")), int(parseLogLevel("")))
	assert.Less(t, int(parseLogLevel("warn")), int(parseLogLevel("info")))
}
