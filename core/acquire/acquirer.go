package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"WaveFM/logger"
	"WaveFM/model"
)

// Acquirer 外部曲目获取服务：按曲目ID下载媒体并返回解析后的元数据。
// 同一曲目ID同时只发起一次调用由 Channel 层保证，不在这里处理。
type Acquirer interface {
	Acquire(ctx context.Context, trackID, channelID int64) (*model.Track, error)
}

// providerTrack 获取服务返回的曲目元数据
type providerTrack struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Artwork  string `json:"image"`
	MediaRef string `json:"mediaRef"`
}

// ProviderClient 基于 HTTP 的获取服务客户端
type ProviderClient struct {
	baseURL string
	client  *http.Client
}

// NewProviderClient 创建获取服务客户端
func NewProviderClient(baseURL string) *ProviderClient {
	return &ProviderClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Acquire 请求获取服务下载曲目，阻塞直到服务端完成或失败
func (p *ProviderClient) Acquire(ctx context.Context, trackID, channelID int64) (*model.Track, error) {
	url := fmt.Sprintf("%s/api/tracks/%d?channel=%d", p.baseURL, trackID, channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build acquire request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acquire request failed for track %d: %w", trackID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("acquire request for track %d returned status %d", trackID, resp.StatusCode)
	}

	var result providerTrack
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode acquire response: %w", err)
	}

	logger.Info("track acquired",
		logger.Int64("track", result.ID),
		logger.String("title", result.Title),
		logger.String("artist", result.Artist))

	return &model.Track{
		ID:       result.ID,
		Title:    result.Title,
		Artist:   result.Artist,
		Artwork:  result.Artwork,
		MediaRef: result.MediaRef,
	}, nil
}
