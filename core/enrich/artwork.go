package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"WaveFM/logger"
	"WaveFM/storage"
)

const artworkAPIURL = "https://ws.audioscrobbler.com/2.0/"

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// ArtworkService 艺术家背景图补全：查询元数据服务取最大尺寸图片，
// 下载后存入对象存储。所有失败只记日志，不向调用方传播。
type ArtworkService struct {
	apiKey string
	client *http.Client

	// 进行中的艺术家，避免并发重复抓取
	inflight sync.Map
}

// NewArtworkService 创建补全服务，apiKey 为空时所有调用都是空操作
func NewArtworkService(apiKey string) *ArtworkService {
	return &ArtworkService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// artistInfoResponse 元数据服务的艺术家信息应答
type artistInfoResponse struct {
	Artist struct {
		Image []struct {
			URL  string `json:"#text"`
			Size string `json:"size"`
		} `json:"image"`
	} `json:"artist"`
}

// EnsureArtistArtwork 确保某艺术家的背景图已入库。尽力而为：
// 已存在或获取失败都静默返回。
func (s *ArtworkService) EnsureArtistArtwork(artist string) {
	if s.apiKey == "" || artist == "" {
		return
	}

	objectName := "artists/" + artistSlug(artist) + ".png"

	// 抢占进行中标记，抢不到说明有人在处理
	if _, loaded := s.inflight.LoadOrStore(objectName, struct{}{}); loaded {
		return
	}
	defer s.inflight.Delete(objectName)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	exists, err := storage.ObjectExists(ctx, objectName)
	if err != nil {
		logger.Warn("failed to check artist artwork", logger.ErrorField(err), logger.String("artist", artist))
		return
	}
	if exists {
		return
	}

	imageURL, err := s.lookupImageURL(ctx, artist)
	if err != nil {
		logger.Warn("artist image lookup failed", logger.ErrorField(err), logger.String("artist", artist))
		return
	}
	if imageURL == "" {
		logger.Info("no artist image found", logger.String("artist", artist))
		return
	}

	if err := s.storeImage(ctx, objectName, imageURL); err != nil {
		logger.Warn("failed to store artist artwork", logger.ErrorField(err), logger.String("artist", artist))
		return
	}

	logger.Info("artist artwork stored", logger.String("artist", artist), logger.String("object", objectName))
}

// lookupImageURL 查询艺术家资料并返回最大尺寸的图片地址
func (s *ArtworkService) lookupImageURL(ctx context.Context, artist string) (string, error) {
	query := url.Values{}
	query.Set("method", "artist.getinfo")
	query.Set("artist", artist)
	query.Set("api_key", s.apiKey)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artworkAPIURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork API returned status %d", resp.StatusCode)
	}

	var info artistInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}

	// 取最后一个非空地址，列表按尺寸升序排列
	var imageURL string
	for i := len(info.Artist.Image) - 1; i >= 0; i-- {
		if info.Artist.Image[i].URL != "" {
			imageURL = info.Artist.Image[i].URL
			break
		}
	}
	return imageURL, nil
}

// storeImage 下载图片并写入对象存储
func (s *ArtworkService) storeImage(ctx context.Context, objectName, imageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return storage.PutObject(ctx, objectName, bytes.NewReader(data), int64(len(data)), "image/png")
}

// artistSlug 把艺术家名转成对象名安全的形式
func artistSlug(artist string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(artist), "-")
	return strings.Trim(slug, "-")
}
