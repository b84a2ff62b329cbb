package repository

import (
	"context"
	"time"

	"github.com/wfunc/draw-guess/internal/models"
	"gorm.io/gorm"
)

// MatchRepository 对局归档仓储接口
type MatchRepository interface {
	BaseRepository
	Create(ctx context.Context, match *models.Match) error
	FindByID(ctx context.Context, id uint) (*models.Match, error)
	List(ctx context.Context, p *Pagination) ([]*models.Match, error)
	FindByRoomCode(ctx context.Context, roomCode string, p *Pagination) ([]*models.Match, error)
	FindByUsername(ctx context.Context, username string, p *Pagination) ([]*models.Match, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// matchRepo 对局归档仓储实现
type matchRepo struct {
	*BaseRepo
}

// NewMatchRepository 创建对局归档仓储
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// WithTx 使用事务
func (r *matchRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &matchRepo{BaseRepo: r.BaseRepo.WithTx(tx)}
}

// Create 保存对局及玩家成绩
func (r *matchRepo) Create(ctx context.Context, match *models.Match) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(match).Error
	})
}

// FindByID 根据ID查找，包含玩家成绩
func (r *matchRepo) FindByID(ctx context.Context, id uint) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("standing ASC")
		}).
		First(&match, id).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// List 按结束时间倒序分页
func (r *matchRepo) List(ctx context.Context, p *Pagination) ([]*models.Match, error) {
	return r.page(ctx, r.db.WithContext(ctx).Model(&models.Match{}), p)
}

// FindByRoomCode 查询某房间的对局
func (r *matchRepo) FindByRoomCode(ctx context.Context, roomCode string, p *Pagination) ([]*models.Match, error) {
	query := r.db.WithContext(ctx).Model(&models.Match{}).Where("room_code = ?", roomCode)
	return r.page(ctx, query, p)
}

// FindByUsername 查询玩家参与过的对局
func (r *matchRepo) FindByUsername(ctx context.Context, username string, p *Pagination) ([]*models.Match, error) {
	sub := r.db.Model(&models.MatchPlayer{}).Select("match_id").Where("username = ?", username)
	query := r.db.WithContext(ctx).Model(&models.Match{}).Where("id IN (?)", sub)
	return r.page(ctx, query, p)
}

// CountSince 统计某时间之后结束的对局数
func (r *matchRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("ended_at >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *matchRepo) page(ctx context.Context, query *gorm.DB, p *Pagination) ([]*models.Match, error) {
	if p == nil {
		p = NewPagination(1, 10)
	}
	query = query.Session(&gorm.Session{})
	if err := query.Count(&p.Total).Error; err != nil {
		return nil, err
	}

	var matches []*models.Match
	err := query.
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("standing ASC")
		}).
		Order("ended_at DESC").
		Order("id DESC").
		Scopes(Paginate(p)).
		Find(&matches).Error
	return matches, err
}
