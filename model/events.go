package model

import "time"

// EventType 频道广播事件类型
type EventType string

const (
	// 播放进度事件
	EventPlay    EventType = "playlist.play"    // 开始播放
	EventPreload EventType = "playlist.preload" // 预载下一首

	// 队列与曲库事件
	EventQueued EventType = "track.queued" // 曲目入队
	EventAdded  EventType = "track.added"  // 曲目加入频道

	// 频道与附加事件
	EventChannelDetails EventType = "channel.details" // 频道信息刷新
	EventConcert        EventType = "artist.concert"  // 演出信息
	EventRated          EventType = "track.rated"     // 评分更新
)

// ChannelEvent 广播给监听者的事件信封
type ChannelEvent struct {
	Type      EventType   `json:"type"`
	ChannelID int64       `json:"channelId"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewChannelEvent 构造带当前时间戳的事件
func NewChannelEvent(eventType EventType, channelID int64, data interface{}) *ChannelEvent {
	return &ChannelEvent{
		Type:      eventType,
		ChannelID: channelID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Concert 演出查询结果
type Concert struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
	Date  string `json:"date"`
}
