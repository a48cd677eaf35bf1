package playout

import (
	"context"
	"sync"

	"WaveFM/core/event"
	"WaveFM/logger"
)

// 调度器事件名，payload 均为曲目ID (int64)
const (
	EventPlay    = "play"    // current 切换，开始播放
	EventPreload = "preload" // 预载下一首
	EventQueued  = "queued"  // 曲目入队等待
)

// Picker 队列耗尽时的自动补位来源（加权随机抽取）
type Picker interface {
	PickTrack(ctx context.Context, channelID int64) (int64, error)
}

// Scheduler 单个频道的播出状态机。
// 状态：Idle（无曲目播放且队列为空）与 Playing（current 非零），
// 预载成功后 preloaded 叠加在 Playing 之上。
// 所有变更经由互斥锁串行化；同一频道的 Advance 不会并发执行。
type Scheduler struct {
	mu        sync.Mutex
	channelID int64
	queue     *Queue
	current   int64 // 0 表示空
	preloaded int64

	picker Picker
	events *event.Emitter
}

// NewScheduler 创建频道播出状态机
func NewScheduler(channelID int64, picker Picker) *Scheduler {
	return &Scheduler{
		channelID: channelID,
		queue:     NewQueue(),
		picker:    picker,
		events:    event.NewEmitter(),
	}
}

// Watch 订阅调度事件。处理函数在持有调度锁的情况下同步调用，
// 因此事件顺序与状态变更顺序一致；处理函数不得回调本调度器。
func (s *Scheduler) Watch(name string, handler event.Handler) {
	s.events.Watch(name, handler)
}

// Current 当前播放的曲目ID，0 表示空闲
func (s *Scheduler) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Preloaded 已预载的下一首曲目ID
func (s *Scheduler) Preloaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preloaded
}

// QueueLen 队列中等待的曲目数
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Enqueue 曲目入队。频道空闲时立即推进并触发 play，
// 否则仅触发 queued。队列中已有同一曲目时忽略，不发事件。
func (s *Scheduler) Enqueue(ctx context.Context, trackID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Contains(trackID) {
		logger.Debug("duplicate enqueue ignored",
			logger.Int64("channel", s.channelID),
			logger.Int64("track", trackID))
		return
	}
	s.queue.Push(trackID)

	if s.current == 0 {
		s.advanceLocked(ctx)
		return
	}

	s.events.Emit(EventQueued, trackID)
}

// Advance 在当前曲目播完时推进：弹出队首播放；队列为空时尝试
// 加权抽取补位并重试一次；仍无曲目则回到空闲态，不发事件。
func (s *Scheduler) Advance(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx)
}

func (s *Scheduler) advanceLocked(ctx context.Context) int64 {
	if trackID, ok := s.queue.Pop(); ok {
		s.playLocked(trackID)
		return trackID
	}

	// 队列空，抽一首补进去再试一次
	trackID, err := s.picker.PickTrack(ctx, s.channelID)
	if err != nil {
		logger.Warn("weighted pick failed",
			logger.ErrorField(err),
			logger.Int64("channel", s.channelID))
	}
	if trackID != 0 {
		s.queue.Push(trackID)
	}

	if trackID, ok := s.queue.Pop(); ok {
		s.playLocked(trackID)
		return trackID
	}

	// 暂时无曲可播：合法的终止态，有新曲目或休息期满后自愈
	s.current = 0
	s.preloaded = 0
	return 0
}

func (s *Scheduler) playLocked(trackID int64) {
	s.current = trackID
	if s.preloaded == trackID {
		s.preloaded = 0
	}
	s.events.Emit(EventPlay, trackID)
}

// PreloadNext 在当前曲目播完之前确定下一首并触发 preload，
// 不改变 current。队列为空时先抽取一首入队，保证预载的就是
// 之后实际播放的队首。
func (s *Scheduler) PreloadNext(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trackID, ok := s.queue.Peek(); ok {
		s.preloaded = trackID
		s.events.Emit(EventPreload, trackID)
		return trackID
	}

	trackID, err := s.picker.PickTrack(ctx, s.channelID)
	if err != nil {
		logger.Warn("weighted pick failed",
			logger.ErrorField(err),
			logger.Int64("channel", s.channelID))
		return 0
	}
	if trackID == 0 {
		return 0
	}

	s.queue.Push(trackID)
	s.preloaded = trackID
	s.events.Emit(EventPreload, trackID)
	return trackID
}
