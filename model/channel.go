package model

// Channel represents a single radio channel.
type Channel struct {
	ID      int64  `json:"channelId"`
	Name    string `json:"channel"`
	Artwork string `json:"image"`
	Songs   int    `json:"songs"`
}

// ChannelDetails 频道的即时快照，含监听人数
type ChannelDetails struct {
	ID        int64  `json:"channelId"`
	Name      string `json:"channel"`
	Artwork   string `json:"image"`
	Listeners int    `json:"listeners"`
	Songs     int    `json:"songs"`
}
