package channel

import (
	"context"
	"sync"
	"time"

	"WaveFM/cache"
	"WaveFM/core/acquire"
	"WaveFM/core/library"
	"WaveFM/core/playout"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
)

// Broadcaster 频道事件的下游扇出（监听者广播组）
type Broadcaster interface {
	Broadcast(channelID int64, ev *model.ChannelEvent) error
	ListenerCount(channelID int64) int
}

// ConcertLookup 演出查询协作方
type ConcertLookup interface {
	Lookup(ctx context.Context, artist string) (*model.Concert, error)
}

// Channel 是单个频道的门面：组合共享曲库、本频道的播出状态机、
// 持久化访问与频道元数据，对外提供全部变更入口。
// 变更操作经由播出状态机的锁与本结构的锁按频道串行化，
// 跨频道操作完全独立。
type Channel struct {
	ID      int64
	Name    string
	Artwork string

	mu       sync.Mutex
	songs    int
	inflight map[int64][]func(*model.Track) // 获取中的曲目 -> 完成回调

	lib         *library.Library
	scheduler   *playout.Scheduler
	channelRepo repository.ChannelRepository
	broadcaster Broadcaster
	acquirer    acquire.Acquirer
	concerts    ConcertLookup
}

// New 装配频道。meta 为持久存储中的频道记录。
// 获取服务与演出查询都在这里显式注入，不依赖进程级全局状态。
func New(meta *model.Channel, lib *library.Library, channelRepo repository.ChannelRepository,
	broadcaster Broadcaster, acquirer acquire.Acquirer, concerts ConcertLookup) *Channel {

	c := &Channel{
		ID:          meta.ID,
		Name:        meta.Name,
		Artwork:     meta.Artwork,
		songs:       meta.Songs,
		inflight:    make(map[int64][]func(*model.Track)),
		lib:         lib,
		channelRepo: channelRepo,
		broadcaster: broadcaster,
		acquirer:    acquirer,
		concerts:    concerts,
	}
	c.scheduler = playout.NewScheduler(meta.ID, lib)

	// 状态机事件转播给监听者
	c.scheduler.Watch(playout.EventPlay, c.onPlay)
	c.scheduler.Watch(playout.EventPreload, c.onPreload)
	c.scheduler.Watch(playout.EventQueued, c.onQueued)

	// 评分聚合更新转播（曲库事件是全局的，按频道过滤）
	lib.Watch(library.EventRated, func(payload interface{}) {
		summary, ok := payload.(*model.RatingSummary)
		if !ok || summary == nil || summary.ChannelID != c.ID {
			return
		}
		c.emit(model.EventRated, summary)
	})

	return c
}

// Scheduler 本频道的播出状态机
func (c *Channel) Scheduler() *playout.Scheduler {
	return c.scheduler
}

// AddSong 把曲目加入频道。已在本频道曲库中的直接入队；
// 未知曲目交给获取服务，同一曲目同时只发起一次获取，
// 后到的调用只追加完成回调。onDone 可以为 nil。
func (c *Channel) AddSong(ctx context.Context, trackID int64, onDone func(*model.Track)) error {
	track, err := c.lib.RefreshTrack(ctx, c.ID, trackID)
	if err != nil {
		return err
	}
	if track != nil {
		// 已有这首歌，直接加进频道
		if err := c.AddSongToChannel(ctx, trackID); err != nil {
			return err
		}
		if onDone != nil {
			onDone(track)
		}
		return nil
	}

	c.mu.Lock()
	if waiters, ok := c.inflight[trackID]; ok {
		// 获取已在路上，挂上回调即可
		if onDone != nil {
			c.inflight[trackID] = append(waiters, onDone)
		}
		c.mu.Unlock()
		return nil
	}
	if onDone != nil {
		c.inflight[trackID] = []func(*model.Track){onDone}
	} else {
		c.inflight[trackID] = nil
	}
	c.mu.Unlock()

	go c.acquireAndAdd(trackID)
	return nil
}

// acquireAndAdd 执行一次获取并在完成后入库、入队、唤醒等待者。
// 获取失败只记日志；在途标记总是被清掉，之后可以重试。
func (c *Channel) acquireAndAdd(trackID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	track, err := c.acquirer.Acquire(ctx, trackID, c.ID)

	c.mu.Lock()
	waiters := c.inflight[trackID]
	delete(c.inflight, trackID)
	c.mu.Unlock()

	if err != nil {
		logger.Warn("track acquisition failed",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID),
			logger.Int64("track", trackID))
		return
	}

	if err := c.lib.AddTrack(ctx, track); err != nil {
		logger.Error("failed to store acquired track",
			logger.ErrorField(err),
			logger.Int64("track", track.ID))
		return
	}

	if err := c.AddSongToChannel(ctx, track.ID); err != nil {
		logger.Error("failed to add acquired track to channel",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID),
			logger.Int64("track", track.ID))
		return
	}

	for _, waiter := range waiters {
		waiter(track)
	}
}

// AddSongToChannel 幂等建立频道关联并入队。频道此前为空时先推进
// 一次状态机；只有真正新建关联才广播 track.added。
func (c *Channel) AddSongToChannel(ctx context.Context, trackID int64) error {
	inserted, err := c.channelRepo.AttachTrack(ctx, c.ID, trackID)
	if err != nil {
		return err
	}

	logger.Info("track added to channel",
		logger.Int64("channel", c.ID),
		logger.Int64("track", trackID))

	c.mu.Lock()
	wasEmpty := c.songs == 0
	c.mu.Unlock()

	// 频道的第一首歌：让状态机先尝试起播
	if wasEmpty {
		c.scheduler.Advance(ctx)
	}

	c.scheduler.Enqueue(ctx, trackID)

	if inserted {
		c.emit(model.EventAdded, c.lib.LookupByID(trackID))
	}

	if _, err := c.GetSongCount(ctx); err != nil {
		logger.Warn("failed to refresh song count",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID))
	}
	return nil
}

// Advance 当前曲目播放完毕，推进状态机。播放进度由外部播放端掌握。
func (c *Channel) Advance(ctx context.Context) int64 {
	return c.scheduler.Advance(ctx)
}

// PreloadNext 预载下一首，供播放端提前拉取媒体
func (c *Channel) PreloadNext(ctx context.Context) int64 {
	return c.scheduler.PreloadNext(ctx)
}

// RateTrack 写入监听者评分；聚合更新经由曲库事件广播
func (c *Channel) RateTrack(ctx context.Context, uuid string, trackID int64, rating int) error {
	_, err := c.lib.RateTrack(ctx, uuid, trackID, c.ID, rating)
	return err
}

// GetListeners 广播组内的监听者数量，组不存在时为 0
func (c *Channel) GetListeners() int {
	return c.broadcaster.ListenerCount(c.ID)
}

// GetTracks 本频道全部曲目，带评分聚合
func (c *Channel) GetTracks(ctx context.Context) ([]*model.Track, error) {
	return c.lib.TracksForChannel(ctx, c.ID)
}

// GetSongCount 从存储重算曲目数并广播 channel.details
func (c *Channel) GetSongCount(ctx context.Context) (int, error) {
	count, err := c.channelRepo.CountTracks(ctx, c.ID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.songs = count
	c.mu.Unlock()

	c.emit(model.EventChannelDetails, map[string]int{"songs": count})

	details := c.GetDetails()
	channelCache := cache.NewChannelCache()
	if err := channelCache.SetDetails(ctx, details); err != nil {
		logger.Debug("failed to cache channel details",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID))
	}
	return count, nil
}

// GetDetails 频道的即时快照，songs 之外不做缓存
func (c *Channel) GetDetails() *model.ChannelDetails {
	c.mu.Lock()
	songs := c.songs
	c.mu.Unlock()

	return &model.ChannelDetails{
		ID:        c.ID,
		Name:      c.Name,
		Artwork:   c.Artwork,
		Listeners: c.GetListeners(),
		Songs:     songs,
	}
}

// CheckConcerts 尽力而为的演出查询，任何失败都只记日志
func (c *Channel) CheckConcerts(ctx context.Context, artist string) {
	if c.concerts == nil || artist == "" {
		return
	}

	concert, err := c.concerts.Lookup(ctx, artist)
	if err != nil {
		logger.Warn("concert lookup failed",
			logger.ErrorField(err),
			logger.String("artist", artist))
		return
	}
	if concert == nil {
		logger.Debug("no concerts found", logger.String("artist", artist))
		return
	}

	logger.Info("concert found",
		logger.String("artist", artist),
		logger.String("title", concert.Title))
	c.emit(model.EventConcert, map[string]*model.Concert{"concert": concert})
}

// ========== 状态机事件转播 ==========

func (c *Channel) onPlay(payload interface{}) {
	trackID := payload.(int64)
	track := c.resolve(trackID)
	c.emit(model.EventPlay, map[string]*model.Track{"track": track})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.lib.RecordPlay(ctx, trackID, c.ID); err != nil {
		logger.Warn("failed to record play",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID),
			logger.Int64("track", trackID))
	}

	if track != nil {
		go func(artist string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			c.CheckConcerts(ctx, artist)
		}(track.Artist)
	}
}

func (c *Channel) onPreload(payload interface{}) {
	trackID := payload.(int64)
	c.emit(model.EventPreload, map[string]*model.Track{"track": c.resolve(trackID)})
}

func (c *Channel) onQueued(payload interface{}) {
	trackID := payload.(int64)
	track := c.resolve(trackID)
	if track != nil {
		logger.Info("song queued",
			logger.Int64("channel", c.ID),
			logger.String("title", track.Title),
			logger.String("artist", track.Artist))
	}
	c.emit(model.EventQueued, map[string]*model.Track{"track": track})
}

// resolve 曲目数据优先走缓存，未命中再查存储：先按频道取带评分
// 聚合的版本，关联缺失时回退到全局查找。
func (c *Channel) resolve(trackID int64) *model.Track {
	if track := c.lib.LookupByID(trackID); track != nil {
		return track
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	track, err := c.lib.RefreshTrack(ctx, c.ID, trackID)
	if err != nil {
		logger.Warn("failed to resolve track",
			logger.ErrorField(err),
			logger.Int64("track", trackID))
		return nil
	}
	if track != nil {
		return track
	}

	track, err = c.lib.FetchTrack(ctx, trackID)
	if err != nil {
		logger.Warn("failed to resolve track",
			logger.ErrorField(err),
			logger.Int64("track", trackID))
		return nil
	}
	return track
}

func (c *Channel) emit(eventType model.EventType, data interface{}) {
	if err := c.broadcaster.Broadcast(c.ID, model.NewChannelEvent(eventType, c.ID, data)); err != nil {
		logger.Warn("failed to broadcast event",
			logger.ErrorField(err),
			logger.String("event", string(eventType)),
			logger.Int64("channel", c.ID))
	}
}
