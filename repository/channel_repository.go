package repository

import (
	"context"
	"database/sql"
	"fmt"

	"WaveFM/model"
)

// ChannelRepository defines the interface for channel data operations.
type ChannelRepository interface {
	GetChannelByID(ctx context.Context, id int64) (*model.Channel, error)
	CountTracks(ctx context.Context, channelID int64) (int, error)
	AttachTrack(ctx context.Context, channelID, trackID int64) (bool, error)
}

// mysqlChannelRepository implements ChannelRepository for MySQL.
type mysqlChannelRepository struct {
	DB *sql.DB
}

// NewMySQLChannelRepository creates a new instance of mysqlChannelRepository.
func NewMySQLChannelRepository(db *sql.DB) ChannelRepository {
	return &mysqlChannelRepository{DB: db}
}

// GetChannelByID retrieves a channel with its current song count.
func (r *mysqlChannelRepository) GetChannelByID(ctx context.Context, id int64) (*model.Channel, error) {
	query := `SELECT channels.id, channels.name, IFNULL(channels.artwork, ''), IFNULL(songs.songs, 0) AS songs
	          FROM channels
	          LEFT JOIN (SELECT channel_id, COUNT(*) AS songs FROM channels_tracks GROUP BY channel_id) songs
	          ON songs.channel_id = channels.id
	          WHERE channels.id = ?`
	row := r.DB.QueryRowContext(ctx, query, id)

	channel := &model.Channel{}
	err := row.Scan(&channel.ID, &channel.Name, &channel.Artwork, &channel.Songs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Channel not found
		}
		return nil, fmt.Errorf("failed to scan channel by ID %d: %w", id, err)
	}
	return channel, nil
}

// CountTracks recomputes the number of tracks associated with a channel.
func (r *mysqlChannelRepository) CountTracks(ctx context.Context, channelID int64) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM channels_tracks WHERE channel_id = ?", channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks for channel %d: %w", channelID, err)
	}
	return count, nil
}

// AttachTrack associates a track with a channel. The insert is idempotent;
// the returned bool reports whether a new association row was created.
func (r *mysqlChannelRepository) AttachTrack(ctx context.Context, channelID, trackID int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO channels_tracks (channel_id, track_id) VALUES (?, ?)", channelID, trackID)
	if err != nil {
		return false, fmt.Errorf("failed to attach track %d to channel %d: %w", trackID, channelID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for AttachTrack: %w", err)
	}
	return affected > 0, nil
}
