package concert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"WaveFM/model"
)

const concertAPIURL = "https://api.songkick.com/api/3.0/events.json"

// Client 演出查询客户端。查询失败或无结果都不算错误，
// 由调用方决定是否记录。
type Client struct {
	apiKey   string
	location string
	client   *http.Client
}

// NewClient 创建演出查询客户端，apiKey 为空时查询直接返回空结果
func NewClient(apiKey, location string) *Client {
	return &Client{
		apiKey:   apiKey,
		location: location,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// eventsResponse 演出服务应答结构
type eventsResponse struct {
	ResultsPage struct {
		Results struct {
			Event []struct {
				DisplayName string `json:"displayName"`
				URI         string `json:"uri"`
				Start       struct {
					Date string `json:"date"`
				} `json:"start"`
			} `json:"event"`
		} `json:"results"`
	} `json:"resultsPage"`
}

// Lookup 查询艺术家最近的演出，没有时返回 (nil, nil)
func (c *Client) Lookup(ctx context.Context, artist string) (*model.Concert, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	query := url.Values{}
	query.Set("apikey", c.apiKey)
	query.Set("artist_name", artist)
	query.Set("location", c.location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, concertAPIURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("concert API returned status %d", resp.StatusCode)
	}

	var result eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	events := result.ResultsPage.Results.Event
	if len(events) == 0 {
		return nil, nil
	}

	return &model.Concert{
		Title: events[0].DisplayName,
		URI:   events[0].URI,
		Date:  events[0].Start.Date,
	}, nil
}
