package repository

import (
	"context"
	"testing"

	"WaveFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRatingRepo(t *testing.T) RatingRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, MigrateRatings(db))

	return NewGormRatingRepository(db)
}

func TestRateCreatesSingleRow(t *testing.T) {
	repo := setupRatingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 1))

	summary, err := repo.Summary(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Up)
	assert.Equal(t, 0, summary.Down)
	assert.Equal(t, []string{"uuid-a"}, summary.UpVoters)
}

func TestRateReplacesPreviousRating(t *testing.T) {
	repo := setupRatingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 1))
	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, -1))

	summary, err := repo.Summary(ctx, 10, 1)
	require.NoError(t, err)
	// 改票：同一身份只保留最新一条
	assert.Equal(t, 0, summary.Up)
	assert.Equal(t, 1, summary.Down)
	assert.Equal(t, []string{"uuid-a"}, summary.DownVoters)
}

func TestRateZeroRemovesRating(t *testing.T) {
	repo := setupRatingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 1))
	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 0))

	summary, err := repo.Summary(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Up)
	assert.Equal(t, 0, summary.Down)
}

func TestRateInvalidValueIgnored(t *testing.T) {
	repo := setupRatingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 1))
	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 7))

	// 非法值不影响既有评分
	summary, err := repo.Summary(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Up)
}

func TestSummaryScopedToChannel(t *testing.T) {
	repo := setupRatingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 1, 1))
	require.NoError(t, repo.Rate(ctx, "uuid-b", 10, 1, -1))
	require.NoError(t, repo.Rate(ctx, "uuid-a", 10, 2, -1))

	summary, err := repo.Summary(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Up)
	assert.Equal(t, 1, summary.Down)

	other, err := repo.Summary(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, other.Up)
	assert.Equal(t, 1, other.Down)
}

func TestSummaryEmptyTrack(t *testing.T) {
	repo := setupRatingRepo(t)

	summary, err := repo.Summary(context.Background(), 999, 1)
	require.NoError(t, err)
	assert.Equal(t, &model.RatingSummary{ChannelID: 1, TrackID: 999}, summary)
}
