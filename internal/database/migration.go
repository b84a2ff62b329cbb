package database

import (
	"fmt"
	"strings"

	"github.com/wfunc/draw-guess/internal/logger"
	"github.com/wfunc/draw-guess/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// archiveModels 对局归档的全部表
var archiveModels = []interface{}{
	&models.Match{},
	&models.MatchPlayer{},
}

// archiveIndexes 查询历史对局用到的组合索引
var archiveIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_matches_room_ended ON matches(room_code, ended_at)",
	"CREATE INDEX IF NOT EXISTS idx_match_players_match_standing ON match_players(match_id, standing)",
}

// AutoMigrate 迁移对局归档表结构
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	log := logger.GetModuleLogger("database")

	// SQLite 文件库用锁文件避免多个进程同时迁移
	if path := sqlitePath(db); path != "" {
		CleanupStaleLocks(path)
		lockFile, err := acquireMigrationLock(path)
		if err != nil {
			log.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	log.Info("开始数据库迁移", zap.String("dialect", db.Dialector.Name()))
	for _, model := range archiveModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
	}

	for _, idx := range archiveIndexes {
		if err := db.Exec(idx).Error; err != nil && !strings.Contains(err.Error(), "already exists") {
			log.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
		}
	}

	log.Info("数据库迁移完成", zap.Int("tables", len(archiveModels)))
	return nil
}

// DropAllTables 删除归档表，仅用于测试环境
func DropAllTables(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	// 先删子表
	for i := len(archiveModels) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(archiveModels[i]); err != nil {
			return err
		}
	}
	return nil
}
