package model

import "time"

// Track represents an audio track in the shared library.
type Track struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	Artwork    string     `json:"artwork"`  // Cover art URL
	MediaRef   string     `json:"mediaRef"` // External media reference used by the player
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
	Plays      int        `json:"plays"`
	CreatedAt  time.Time  `json:"createdAt"`

	// 以下字段仅在按频道读取时填充（评分聚合）
	Up         int      `json:"up"`
	Down       int      `json:"down"`
	UpVoters   []string `json:"upVoters,omitempty"`
	DownVoters []string `json:"downVoters,omitempty"`
}

// ChannelTrack 频道与曲目的关联信息
type ChannelTrack struct {
	ChannelID  int64      `json:"channelId"`
	TrackID    int64      `json:"trackId"`
	Added      time.Time  `json:"added"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
	Plays      int        `json:"plays"`
}

// PickCandidate 加权随机抽取的候选项
// Since 是距上次播放（或加入频道）的天数，Weight 已按 since - down*5 + down 计算
type PickCandidate struct {
	TrackID int64
	Since   float64
	Down    int
	Weight  float64
}
