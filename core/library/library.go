package library

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"WaveFM/core/event"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
)

// 曲库事件名
const (
	EventAdded = "added" // payload: *model.Track
	EventRated = "rated" // payload: *model.RatingSummary
)

// 上游元数据服务的默认占位封面，展示前清掉
const placeholderArtwork = "http://cdn.last.fm/flatness/catalogue/noimage/2/default_album_medium.png"

// 候选曲目的最短休息时间（天）与降票淘汰阈值
const (
	minRestDays  = 0.5
	maxDownvotes = 3
)

// Enricher 艺术家图片补全协作方，尽力而为
type Enricher interface {
	EnsureArtistArtwork(artist string)
}

// Library 是全部频道共享的曲目目录：持久存储的内存镜像加直通缓存，
// 并负责加权随机抽取。
type Library struct {
	mu     sync.RWMutex
	tracks map[int64]*model.Track

	trackRepo  repository.TrackRepository
	ratingRepo repository.RatingRepository
	enricher   Enricher

	events *event.Emitter
}

// New 创建曲库。enricher 可以为 nil，此时跳过图片补全。
func New(trackRepo repository.TrackRepository, ratingRepo repository.RatingRepository, enricher Enricher) *Library {
	return &Library{
		tracks:     make(map[int64]*model.Track),
		trackRepo:  trackRepo,
		ratingRepo: ratingRepo,
		enricher:   enricher,
		events:     event.NewEmitter(),
	}
}

// Load 从持久存储装载内存镜像
func (l *Library) Load(ctx context.Context) error {
	tracks, err := l.trackRepo.GetAllTracks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, track := range tracks {
		l.tracks[track.ID] = track
	}

	logger.Info("library loaded", logger.Int("tracks", len(tracks)))
	return nil
}

// Count 返回曲库中的曲目数量
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// Watch 订阅曲库事件
func (l *Library) Watch(name string, handler event.Handler) {
	l.events.Watch(name, handler)
}

// LookupByID 只查内存缓存的同步查找。评分聚合可能是过期的；
// 需要权威数据时用 RefreshTrack。
func (l *Library) LookupByID(id int64) *model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tracks[id]
}

// LookupByTitleArtist 按标题精确匹配查缓存，artist 为空时忽略艺术家
func (l *Library) LookupByTitleArtist(title, artist string) *model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, track := range l.tracks {
		if track.Title == title && (artist == "" || track.Artist == artist) {
			return track
		}
	}
	return nil
}

// RefreshTrack 权威查找：从存储读取曲目及该频道的评分聚合，
// 刷新缓存条目，并顺带触发艺术家图片补全。未关联时返回 (nil, nil)。
func (l *Library) RefreshTrack(ctx context.Context, channelID, id int64) (*model.Track, error) {
	track, err := l.trackRepo.GetChannelTrack(ctx, channelID, id)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, nil
	}

	if l.enricher != nil {
		go l.enricher.EnsureArtistArtwork(track.Artist)
	}

	if track.Artwork == placeholderArtwork {
		track.Artwork = ""
	}

	l.mu.Lock()
	l.tracks[track.ID] = track
	l.mu.Unlock()

	return track, nil
}

// FetchTrack 不限频道的权威查找：按ID从存储读取并刷新缓存，
// 评分聚合不填充。曲目不存在时返回 (nil, nil)。
func (l *Library) FetchTrack(ctx context.Context, id int64) (*model.Track, error) {
	track, err := l.trackRepo.GetTrackByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, nil
	}

	l.mu.Lock()
	l.tracks[track.ID] = track
	l.mu.Unlock()

	return track, nil
}

// AddTrack 追加曲目：写缓存、幂等入库、触发 added 事件与图片补全
func (l *Library) AddTrack(ctx context.Context, track *model.Track) error {
	if err := l.trackRepo.CreateTrack(ctx, track); err != nil {
		return err
	}

	l.mu.Lock()
	l.tracks[track.ID] = track
	l.mu.Unlock()

	logger.Info("track added",
		logger.Int64("track", track.ID),
		logger.String("title", track.Title),
		logger.String("artist", track.Artist))

	if l.enricher != nil {
		go l.enricher.EnsureArtistArtwork(track.Artist)
	}

	l.events.Emit(EventAdded, track)
	return nil
}

// TracksForChannel 读取某频道的全部曲目，带评分聚合
func (l *Library) TracksForChannel(ctx context.Context, channelID int64) ([]*model.Track, error) {
	return l.trackRepo.GetTracksByChannel(ctx, channelID)
}

// RecordPlay 更新全局与频道内的最近播放时间和播放计数
func (l *Library) RecordPlay(ctx context.Context, trackID, channelID int64) error {
	if err := l.trackRepo.RecordPlay(ctx, trackID, channelID); err != nil {
		return err
	}

	l.mu.Lock()
	if track, ok := l.tracks[trackID]; ok {
		track.Plays++
	}
	l.mu.Unlock()
	return nil
}

// RateTrack 写入监听者评分并返回刷新后的聚合。
// 0 删除既有评分，±1 替换，其他取值不做任何事。
func (l *Library) RateTrack(ctx context.Context, uuid string, trackID, channelID int64, rating int) (*model.RatingSummary, error) {
	if rating != -1 && rating != 0 && rating != 1 {
		return nil, nil
	}

	if err := l.ratingRepo.Rate(ctx, uuid, trackID, channelID, rating); err != nil {
		return nil, err
	}

	summary, err := l.ratingRepo.Summary(ctx, trackID, channelID)
	if err != nil {
		return nil, err
	}

	l.events.Emit(EventRated, summary)
	return summary, nil
}

// PickTrack 按权重随机抽取频道内的一首曲目，返回 0 表示暂无可选。
// 选取概率与 ceil(weight) 成正比；前缀和加二分替代展开重复池，
// 分布与逐条重复完全一致。
func (l *Library) PickTrack(ctx context.Context, channelID int64) (int64, error) {
	candidates, err := l.trackRepo.PickCandidates(ctx, channelID)
	if err != nil {
		return 0, err
	}

	ids := make([]int64, 0, len(candidates))
	prefix := make([]int, 0, len(candidates))
	total := 0
	for _, c := range candidates {
		// 存储层已过滤，这里再拦一次，保证假数据源下语义不变
		if c.Since <= minRestDays || c.Down >= maxDownvotes {
			continue
		}
		w := int(math.Ceil(c.Weight))
		if w <= 0 {
			continue
		}
		total += w
		ids = append(ids, c.TrackID)
		prefix = append(prefix, total)
	}

	if total == 0 {
		logger.Info("channel playlist empty", logger.Int64("channel", channelID))
		return 0, nil
	}

	r := rand.Intn(total)
	i := sort.Search(len(prefix), func(i int) bool { return prefix[i] > r })
	return ids[i], nil
}
