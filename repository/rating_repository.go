package repository

import (
	"context"
	"fmt"

	"WaveFM/model"

	"gorm.io/gorm"
)

// RatingRepository 评分存取接口
// 每个 (uuid, track, channel) 至多一条记录；写 0 等于删除
type RatingRepository interface {
	Rate(ctx context.Context, uuid string, trackID, channelID int64, rating int) error
	Summary(ctx context.Context, trackID, channelID int64) (*model.RatingSummary, error)
}

type gormRatingRepository struct {
	db *gorm.DB
}

// NewGormRatingRepository creates a rating repository backed by GORM.
func NewGormRatingRepository(db *gorm.DB) RatingRepository {
	return &gormRatingRepository{db: db}
}

// MigrateRatings 建立评分表结构
func MigrateRatings(db *gorm.DB) error {
	return db.AutoMigrate(&model.Rating{})
}

// Rate replaces any previous rating of this identity for the (track, channel)
// pair. Rating 0 removes the record. Values outside {-1, 0, 1} are ignored.
func (r *gormRatingRepository) Rate(ctx context.Context, uuid string, trackID, channelID int64, rating int) error {
	if rating != -1 && rating != 0 && rating != 1 {
		// 宽容输入策略：非法值不报错，直接忽略
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ? AND track_id = ? AND channel_id = ?", uuid, trackID, channelID).
			Delete(&model.Rating{}).Error; err != nil {
			return fmt.Errorf("failed to delete previous rating: %w", err)
		}

		if rating == 0 {
			return nil
		}

		record := model.Rating{
			UUID:      uuid,
			TrackID:   trackID,
			ChannelID: channelID,
			Rating:    rating,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to insert rating: %w", err)
		}
		return nil
	})
}

// Summary aggregates up/down counts and voter identities for a track in a channel.
func (r *gormRatingRepository) Summary(ctx context.Context, trackID, channelID int64) (*model.RatingSummary, error) {
	var ratings []model.Rating
	err := r.db.WithContext(ctx).
		Where("track_id = ? AND channel_id = ?", trackID, channelID).
		Order("created_at").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings for track %d in channel %d: %w", trackID, channelID, err)
	}

	summary := &model.RatingSummary{ChannelID: channelID, TrackID: trackID}
	for _, rating := range ratings {
		if rating.Rating > 0 {
			summary.Up++
			summary.UpVoters = append(summary.UpVoters, rating.UUID)
		} else if rating.Rating < 0 {
			summary.Down++
			summary.DownVoters = append(summary.DownVoters, rating.UUID)
		}
	}
	return summary, nil
}
