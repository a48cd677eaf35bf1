package library

import (
	"context"
	"testing"

	"WaveFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrackRepo 内存曲目存储，PickCandidates 返回固定候选
type fakeTrackRepo struct {
	tracks        map[int64]*model.Track
	channelTracks map[int64]map[int64]bool // channelID -> trackID
	candidates    []model.PickCandidate
	plays         []int64
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{
		tracks:        make(map[int64]*model.Track),
		channelTracks: make(map[int64]map[int64]bool),
	}
}

func (r *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) error {
	if _, ok := r.tracks[track.ID]; ok {
		return nil // INSERT IGNORE 语义
	}
	r.tracks[track.ID] = track
	return nil
}

func (r *fakeTrackRepo) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	return r.tracks[id], nil
}

func (r *fakeTrackRepo) GetAllTracks(ctx context.Context) ([]*model.Track, error) {
	all := make([]*model.Track, 0, len(r.tracks))
	for _, track := range r.tracks {
		all = append(all, track)
	}
	return all, nil
}

func (r *fakeTrackRepo) GetChannelTrack(ctx context.Context, channelID, trackID int64) (*model.Track, error) {
	if !r.channelTracks[channelID][trackID] {
		return nil, nil
	}
	return r.tracks[trackID], nil
}

func (r *fakeTrackRepo) GetTracksByChannel(ctx context.Context, channelID int64) ([]*model.Track, error) {
	var out []*model.Track
	for id := range r.channelTracks[channelID] {
		out = append(out, r.tracks[id])
	}
	return out, nil
}

func (r *fakeTrackRepo) RecordPlay(ctx context.Context, trackID, channelID int64) error {
	r.plays = append(r.plays, trackID)
	return nil
}

func (r *fakeTrackRepo) PickCandidates(ctx context.Context, channelID int64) ([]model.PickCandidate, error) {
	return r.candidates, nil
}

func (r *fakeTrackRepo) attach(channelID, trackID int64) {
	if r.channelTracks[channelID] == nil {
		r.channelTracks[channelID] = make(map[int64]bool)
	}
	r.channelTracks[channelID][trackID] = true
}

// fakeRatingRepo 内存评分存储
type fakeRatingRepo struct {
	ratings map[string]int // uuid -> rating，单频道单曲目场景够用
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[string]int)}
}

func (r *fakeRatingRepo) Rate(ctx context.Context, uuid string, trackID, channelID int64, rating int) error {
	if rating == 0 {
		delete(r.ratings, uuid)
		return nil
	}
	r.ratings[uuid] = rating
	return nil
}

func (r *fakeRatingRepo) Summary(ctx context.Context, trackID, channelID int64) (*model.RatingSummary, error) {
	summary := &model.RatingSummary{ChannelID: channelID, TrackID: trackID}
	for uuid, rating := range r.ratings {
		if rating > 0 {
			summary.Up++
			summary.UpVoters = append(summary.UpVoters, uuid)
		} else {
			summary.Down++
			summary.DownVoters = append(summary.DownVoters, uuid)
		}
	}
	return summary, nil
}

func newTestLibrary(trackRepo *fakeTrackRepo, ratingRepo *fakeRatingRepo) *Library {
	return New(trackRepo, ratingRepo, nil)
}

func TestAddTrackCachesAndEmits(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	var added *model.Track
	lib.Watch(EventAdded, func(payload interface{}) {
		added = payload.(*model.Track)
	})

	track := &model.Track{ID: 7, Title: "Go Your Own Way", Artist: "Fleetwood Mac"}
	require.NoError(t, lib.AddTrack(context.Background(), track))

	assert.Equal(t, track, lib.LookupByID(7))
	assert.Equal(t, 1, lib.Count())
	require.NotNil(t, added)
	assert.Equal(t, int64(7), added.ID)
}

func TestLookupByIDMissReturnsNil(t *testing.T) {
	lib := newTestLibrary(newFakeTrackRepo(), newFakeRatingRepo())
	assert.Nil(t, lib.LookupByID(99))
}

func TestLookupByTitleArtist(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	require.NoError(t, lib.AddTrack(context.Background(), &model.Track{ID: 1, Title: "Dreams", Artist: "Fleetwood Mac"}))
	require.NoError(t, lib.AddTrack(context.Background(), &model.Track{ID: 2, Title: "Dreams", Artist: "The Cranberries"}))

	found := lib.LookupByTitleArtist("Dreams", "The Cranberries")
	require.NotNil(t, found)
	assert.Equal(t, int64(2), found.ID)

	// artist 为空时按标题匹配任意一条
	assert.NotNil(t, lib.LookupByTitleArtist("Dreams", ""))
	assert.Nil(t, lib.LookupByTitleArtist("Landslide", ""))
}

func TestRefreshTrackScrubsPlaceholderArtwork(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	trackRepo.tracks[5] = &model.Track{ID: 5, Title: "Clint Eastwood", Artist: "Gorillaz", Artwork: placeholderArtwork}
	trackRepo.attach(1, 5)

	track, err := lib.RefreshTrack(context.Background(), 1, 5)
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Empty(t, track.Artwork)

	// 刷新结果进缓存
	assert.Equal(t, track, lib.LookupByID(5))
}

func TestRefreshTrackNotAssociatedReturnsNil(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	trackRepo.tracks[5] = &model.Track{ID: 5, Title: "Clint Eastwood", Artist: "Gorillaz"}

	track, err := lib.RefreshTrack(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Nil(t, track)
}

func TestFetchTrackCachesGlobalLookup(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	// 入库但未关联任何频道
	trackRepo.tracks[8] = &model.Track{ID: 8, Title: "Reptilia", Artist: "The Strokes"}

	track, err := lib.FetchTrack(context.Background(), 8)
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, "Reptilia", track.Title)
	assert.Equal(t, track, lib.LookupByID(8))

	missing, err := lib.FetchTrack(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordPlayBumpsCachedCounter(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	require.NoError(t, lib.AddTrack(context.Background(), &model.Track{ID: 3, Title: "Feel Good Inc"}))
	require.NoError(t, lib.RecordPlay(context.Background(), 3, 1))

	assert.Equal(t, 1, lib.LookupByID(3).Plays)
	assert.Equal(t, []int64{3}, trackRepo.plays)
}

func TestRateTrackReplacesAndEmits(t *testing.T) {
	ratingRepo := newFakeRatingRepo()
	lib := newTestLibrary(newFakeTrackRepo(), ratingRepo)

	var emitted *model.RatingSummary
	lib.Watch(EventRated, func(payload interface{}) {
		emitted = payload.(*model.RatingSummary)
	})

	summary, err := lib.RateTrack(context.Background(), "uuid-a", 3, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Up)

	// 同一身份改票：旧值被替换而不是累加
	summary, err = lib.RateTrack(context.Background(), "uuid-a", 3, 1, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Up)
	assert.Equal(t, 1, summary.Down)
	require.NotNil(t, emitted)
	assert.Equal(t, summary, emitted)

	// 0 撤销评分
	summary, err = lib.RateTrack(context.Background(), "uuid-a", 3, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Up+summary.Down)
}

func TestRateTrackInvalidValueIsNoop(t *testing.T) {
	ratingRepo := newFakeRatingRepo()
	lib := newTestLibrary(newFakeTrackRepo(), ratingRepo)

	emitted := false
	lib.Watch(EventRated, func(payload interface{}) { emitted = true })

	summary, err := lib.RateTrack(context.Background(), "uuid-a", 3, 1, 5)
	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.False(t, emitted)
	assert.Empty(t, ratingRepo.ratings)
}

func TestPickTrackEmptyChannel(t *testing.T) {
	lib := newTestLibrary(newFakeTrackRepo(), newFakeRatingRepo())

	id, err := lib.PickTrack(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestPickTrackFiltersRestingAndDownvoted(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	trackRepo.candidates = []model.PickCandidate{
		{TrackID: 1, Since: 0.2, Down: 0, Weight: 0.2}, // 休息期内
		{TrackID: 2, Since: 3.0, Down: 3, Weight: 0.0}, // 降票出局
		{TrackID: 3, Since: 2.0, Down: 0, Weight: 2.0}, // 唯一合法候选
	}

	for i := 0; i < 50; i++ {
		id, err := lib.PickTrack(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), id)
	}
}

func TestPickTrackWeightedDistribution(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	// 权重 9:1，重复抽取后频次应当明显分离
	trackRepo.candidates = []model.PickCandidate{
		{TrackID: 1, Since: 10.0, Down: 0, Weight: 9.0},
		{TrackID: 2, Since: 1.0, Down: 0, Weight: 1.0},
	}

	counts := make(map[int64]int)
	for i := 0; i < 2000; i++ {
		id, err := lib.PickTrack(context.Background(), 1)
		require.NoError(t, err)
		counts[id]++
	}

	assert.Greater(t, counts[1], counts[2]*4)
	assert.Greater(t, counts[2], 0)
}

func TestPickTrackAllCandidatesResting(t *testing.T) {
	trackRepo := newFakeTrackRepo()
	lib := newTestLibrary(trackRepo, newFakeRatingRepo())

	trackRepo.candidates = []model.PickCandidate{
		{TrackID: 1, Since: 0.1, Down: 0, Weight: 0.1},
		{TrackID: 2, Since: 0.4, Down: 0, Weight: 0.4},
	}

	id, err := lib.PickTrack(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}
