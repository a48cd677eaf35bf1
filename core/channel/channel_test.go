package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"WaveFM/core/library"
	"WaveFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrackRepo 内存曲目存储
type fakeTrackRepo struct {
	mu            sync.Mutex
	tracks        map[int64]*model.Track
	channelTracks map[int64]map[int64]bool
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{
		tracks:        make(map[int64]*model.Track),
		channelTracks: make(map[int64]map[int64]bool),
	}
}

func (r *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracks[track.ID]; !ok {
		r.tracks[track.ID] = track
	}
	return nil
}

func (r *fakeTrackRepo) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracks[id], nil
}

func (r *fakeTrackRepo) GetAllTracks(ctx context.Context) ([]*model.Track, error) {
	return nil, nil
}

func (r *fakeTrackRepo) GetChannelTrack(ctx context.Context, channelID, trackID int64) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.channelTracks[channelID][trackID] {
		return nil, nil
	}
	return r.tracks[trackID], nil
}

func (r *fakeTrackRepo) GetTracksByChannel(ctx context.Context, channelID int64) ([]*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Track
	for id := range r.channelTracks[channelID] {
		out = append(out, r.tracks[id])
	}
	return out, nil
}

func (r *fakeTrackRepo) RecordPlay(ctx context.Context, trackID, channelID int64) error {
	return nil
}

func (r *fakeTrackRepo) PickCandidates(ctx context.Context, channelID int64) ([]model.PickCandidate, error) {
	return nil, nil
}

func (r *fakeTrackRepo) attach(channelID, trackID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channelTracks[channelID] == nil {
		r.channelTracks[channelID] = make(map[int64]bool)
	}
	r.channelTracks[channelID][trackID] = true
}

// fakeRatingRepo 评分存储桩，测试里只关心事件转发
type fakeRatingRepo struct{}

func (fakeRatingRepo) Rate(ctx context.Context, uuid string, trackID, channelID int64, rating int) error {
	return nil
}

func (fakeRatingRepo) Summary(ctx context.Context, trackID, channelID int64) (*model.RatingSummary, error) {
	return &model.RatingSummary{TrackID: trackID, ChannelID: channelID, Up: 1}, nil
}

// fakeChannelRepo 频道存储，AttachTrack 实现 INSERT IGNORE 语义
type fakeChannelRepo struct {
	mu       sync.Mutex
	meta     *model.Channel
	attached map[int64]bool
	tracks   *fakeTrackRepo
}

func newFakeChannelRepo(meta *model.Channel, tracks *fakeTrackRepo) *fakeChannelRepo {
	return &fakeChannelRepo{meta: meta, attached: make(map[int64]bool), tracks: tracks}
}

func (r *fakeChannelRepo) GetChannelByID(ctx context.Context, id int64) (*model.Channel, error) {
	if r.meta == nil || r.meta.ID != id {
		return nil, nil
	}
	return r.meta, nil
}

func (r *fakeChannelRepo) CountTracks(ctx context.Context, channelID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attached), nil
}

func (r *fakeChannelRepo) AttachTrack(ctx context.Context, channelID, trackID int64) (bool, error) {
	r.mu.Lock()
	if r.attached[trackID] {
		r.mu.Unlock()
		return false, nil
	}
	r.attached[trackID] = true
	r.mu.Unlock()
	r.tracks.attach(channelID, trackID)
	return true, nil
}

// fakeBroadcaster 记录广播的事件
type fakeBroadcaster struct {
	mu        sync.Mutex
	events    []*model.ChannelEvent
	listeners int
}

func (b *fakeBroadcaster) Broadcast(channelID int64, ev *model.ChannelEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBroadcaster) ListenerCount(channelID int64) int {
	return b.listeners
}

func (b *fakeBroadcaster) count(eventType model.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// fakeAcquirer 可阻塞的获取服务桩
type fakeAcquirer struct {
	calls   int64
	release chan struct{}
}

func (a *fakeAcquirer) Acquire(ctx context.Context, trackID, channelID int64) (*model.Track, error) {
	atomic.AddInt64(&a.calls, 1)
	if a.release != nil {
		<-a.release
	}
	return &model.Track{ID: trackID, Title: "Acquired", Artist: "Unknown"}, nil
}

func newTestChannel(t *testing.T) (*Channel, *fakeTrackRepo, *fakeChannelRepo, *fakeBroadcaster, *fakeAcquirer) {
	t.Helper()

	trackRepo := newFakeTrackRepo()
	meta := &model.Channel{ID: 1, Name: "Indie", Songs: 0}
	channelRepo := newFakeChannelRepo(meta, trackRepo)
	broadcaster := &fakeBroadcaster{}
	acquirer := &fakeAcquirer{}
	lib := library.New(trackRepo, fakeRatingRepo{}, nil)

	c := New(meta, lib, channelRepo, broadcaster, acquirer, nil)
	return c, trackRepo, channelRepo, broadcaster, acquirer
}

func TestAddSongKnownTrackEnqueuesWithoutAcquisition(t *testing.T) {
	c, trackRepo, _, broadcaster, acquirer := newTestChannel(t)

	trackRepo.tracks[10] = &model.Track{ID: 10, Title: "Wolf Like Me", Artist: "TV on the Radio"}
	trackRepo.attach(1, 10)

	done := make(chan *model.Track, 1)
	require.NoError(t, c.AddSong(context.Background(), 10, func(track *model.Track) {
		done <- track
	}))

	select {
	case track := <-done:
		assert.Equal(t, int64(10), track.ID)
	case <-time.After(time.Second):
		t.Fatal("completion callback not called")
	}

	assert.EqualValues(t, 0, atomic.LoadInt64(&acquirer.calls))
	// 空频道的第一首歌直接开播
	assert.Equal(t, int64(10), c.Scheduler().Current())
	assert.Equal(t, 1, broadcaster.count(model.EventPlay))
}

func TestAddSongConcurrentAcquisitionDeduplicated(t *testing.T) {
	c, _, _, _, acquirer := newTestChannel(t)
	acquirer.release = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	var completions int64

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.AddSong(context.Background(), 42, func(track *model.Track) {
				atomic.AddInt64(&completions, 1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	close(acquirer.release)

	// 等待后台获取完成
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&completions) == callers
	}, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt64(&acquirer.calls))
	assert.Equal(t, int64(42), c.Scheduler().Current())
}

func TestAddSongToChannelIdempotent(t *testing.T) {
	c, trackRepo, _, broadcaster, _ := newTestChannel(t)

	trackRepo.tracks[10] = &model.Track{ID: 10, Title: "Maps", Artist: "Yeah Yeah Yeahs"}

	require.NoError(t, c.AddSongToChannel(context.Background(), 10))
	require.NoError(t, c.AddSongToChannel(context.Background(), 10))

	// 重复关联不再广播 track.added
	assert.Equal(t, 1, broadcaster.count(model.EventAdded))
	assert.Equal(t, int64(10), c.Scheduler().Current())
}

func TestGetListenersDelegatesToBroadcaster(t *testing.T) {
	c, _, _, broadcaster, _ := newTestChannel(t)

	assert.Equal(t, 0, c.GetListeners())
	broadcaster.listeners = 3
	assert.Equal(t, 3, c.GetListeners())
}

func TestGetSongCountBroadcastsDetails(t *testing.T) {
	c, trackRepo, _, broadcaster, _ := newTestChannel(t)

	trackRepo.tracks[10] = &model.Track{ID: 10, Title: "Maps"}
	require.NoError(t, c.AddSongToChannel(context.Background(), 10))

	count, err := c.GetSongCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.GreaterOrEqual(t, broadcaster.count(model.EventChannelDetails), 1)
	assert.Equal(t, 1, c.GetDetails().Songs)
}

func TestManagerActivatesChannelOnce(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	meta := &model.Channel{ID: 1, Name: "Indie"}
	channelRepo := newFakeChannelRepo(meta, trackRepo)
	lib := library.New(trackRepo, fakeRatingRepo{}, nil)
	manager := NewManager(lib, channelRepo, &fakeBroadcaster{}, &fakeAcquirer{}, nil)

	assert.Equal(t, 0, manager.Active())

	first, err := manager.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	// 重复访问拿到同一实例，不会重复装配
	second, err := manager.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, manager.Active())

	// 不存在的频道返回 (nil, nil)
	missing, err := manager.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, 1, manager.Active())
}

func TestRatedEventRelayFiltersByChannel(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := library.New(trackRepo, fakeRatingRepo{}, nil)
	broadcaster := &fakeBroadcaster{}

	meta := &model.Channel{ID: 1, Name: "Indie"}
	channelRepo := newFakeChannelRepo(meta, trackRepo)
	c := New(meta, lib, channelRepo, broadcaster, &fakeAcquirer{}, nil)

	// 本频道的评分会被转播
	require.NoError(t, c.RateTrack(context.Background(), "uuid-a", 10, 1))
	assert.Equal(t, 1, broadcaster.count(model.EventRated))

	// 其他频道的评分不会
	_, err := lib.RateTrack(context.Background(), "uuid-a", 10, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, broadcaster.count(model.EventRated))
}
