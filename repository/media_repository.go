package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MTCPlayer/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMediaNotFound is returned when an update targets an unknown id.
var ErrMediaNotFound = errors.New("media item not found")

// MediaRepository 媒体库数据访问接口
type MediaRepository interface {
	Migrate(ctx context.Context) error
	Upsert(ctx context.Context, items ...*model.MediaItem) error
	GetByID(ctx context.Context, id string) (*model.MediaItem, error)
	List(ctx context.Context, query string) ([]*model.MediaItem, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]*model.MediaItem, error)
	IncrementPlayCount(ctx context.Context, id string, at time.Time) (*model.MediaItem, error)
	Delete(ctx context.Context, id string) error
}

// gormMediaRepository GORM 实现
type gormMediaRepository struct {
	db *gorm.DB
}

// NewGormMediaRepository 创建 GORM 媒体仓库
func NewGormMediaRepository(db *gorm.DB) MediaRepository {
	return &gormMediaRepository{db: db}
}

func (r *gormMediaRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.MediaItem{})
}

// Upsert 插入或覆盖媒体条目，保留已有的播放统计
func (r *gormMediaRepository) Upsert(ctx context.Context, items ...*model.MediaItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "artist", "album", "cover_url", "media_url", "type",
			"duration", "moods", "tags", "lyrics", "updated_at",
		}),
	}).Create(items).Error
}

// GetByID 根据ID获取媒体，不存在时返回 nil
func (r *gormMediaRepository) GetByID(ctx context.Context, id string) (*model.MediaItem, error) {
	var item model.MediaItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// List 按标题/艺术家/专辑模糊搜索，query 为空时返回全部
func (r *gormMediaRepository) List(ctx context.Context, query string) ([]*model.MediaItem, error) {
	var items []*model.MediaItem
	tx := r.db.WithContext(ctx).Order("artist ASC, title ASC")
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(artist) LIKE ? OR LOWER(album) LIKE ?", like, like, like)
	}
	err := tx.Find(&items).Error
	return items, err
}

// RecentlyPlayed 最近播放，按最后播放时间倒序
func (r *gormMediaRepository) RecentlyPlayed(ctx context.Context, limit int) ([]*model.MediaItem, error) {
	var items []*model.MediaItem
	err := r.db.WithContext(ctx).
		Where("last_played > 0").
		Order("last_played DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// IncrementPlayCount 播放次数 +1 并记录播放时间，返回更新后的条目
func (r *gormMediaRepository) IncrementPlayCount(ctx context.Context, id string, at time.Time) (*model.MediaItem, error) {
	var item model.MediaItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.MediaItem{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"play_count":  gorm.Expr("play_count + ?", 1),
				"last_played": at.UnixMilli(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrMediaNotFound, id)
		}
		return tx.Where("id = ?", id).First(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete 删除媒体条目
func (r *gormMediaRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.MediaItem{}).Error
}
