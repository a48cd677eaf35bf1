package model

import "time"

// Rating 单个监听者对某频道内某曲目的评分，取值 -1 或 1。
// 0 表示中立，对应记录不存在。
type Rating struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UUID      string    `gorm:"column:uuid;size:64;uniqueIndex:uq_rating_identity,priority:1"`
	TrackID   int64     `gorm:"column:track_id;uniqueIndex:uq_rating_identity,priority:2"`
	ChannelID int64     `gorm:"column:channel_id;uniqueIndex:uq_rating_identity,priority:3"`
	Rating    int       `gorm:"column:rating"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName maps Rating onto the track_ratings table.
func (Rating) TableName() string {
	return "track_ratings"
}

// RatingSummary 某曲目在某频道内的评分聚合
type RatingSummary struct {
	ChannelID  int64    `json:"channelId"`
	TrackID    int64    `json:"trackId"`
	Up         int      `json:"up"`
	Down       int      `json:"down"`
	UpVoters   []string `json:"upVoters,omitempty"`
	DownVoters []string `json:"downVoters,omitempty"`
}
