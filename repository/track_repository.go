package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"WaveFM/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetAllTracks(ctx context.Context) ([]*model.Track, error)
	GetChannelTrack(ctx context.Context, channelID, trackID int64) (*model.Track, error)
	GetTracksByChannel(ctx context.Context, channelID int64) ([]*model.Track, error)
	RecordPlay(ctx context.Context, trackID, channelID int64) error
	PickCandidates(ctx context.Context, channelID int64) ([]model.PickCandidate, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: db}
}

// ratingJoin 按频道聚合评分的公共JOIN片段
// up/down 为计数，up_voters/down_voters 为逗号分隔的uuid列表
const ratingJoin = `
	LEFT JOIN (SELECT track_id, COUNT(*) AS up, GROUP_CONCAT(uuid) AS up_voters
	           FROM track_ratings WHERE rating > 0 AND channel_id = ? GROUP BY track_id) ratings_up
	ON ratings_up.track_id = tracks.id
	LEFT JOIN (SELECT track_id, COUNT(*) AS down, GROUP_CONCAT(uuid) AS down_voters
	           FROM track_ratings WHERE rating < 0 AND channel_id = ? GROUP BY track_id) ratings_down
	ON ratings_down.track_id = tracks.id`

// CreateTrack adds a new track to the database. The insert is idempotent:
// a track that already exists is left untouched.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	query := `INSERT IGNORE INTO tracks (id, title, artist, artwork, media_ref, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.ExecContext(ctx, track.ID, track.Title, track.Artist, track.Artwork, track.MediaRef, time.Now()); err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	return nil
}

// GetTrackByID retrieves a track by its ID, without rating aggregates.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	query := `SELECT id, title, artist, artwork, media_ref, last_played, plays, created_at
	          FROM tracks WHERE id = ?`
	row := r.DB.QueryRowContext(ctx, query, id)

	track := &model.Track{}
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.Artwork, &track.MediaRef, &track.LastPlayed, &track.Plays, &track.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetAllTracks retrieves the full catalog, ordered for the in-memory mirror.
func (r *mysqlTrackRepository) GetAllTracks(ctx context.Context) ([]*model.Track, error) {
	query := `SELECT id, title, artist, artwork, media_ref, last_played, plays, created_at
	          FROM tracks ORDER BY artist, title`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query all tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track := &model.Track{}
		err := rows.Scan(&track.ID, &track.Title, &track.Artist, &track.Artwork, &track.MediaRef, &track.LastPlayed, &track.Plays, &track.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetAllTracks: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllTracks: %w", err)
	}
	return tracks, nil
}

// GetChannelTrack retrieves a track that belongs to the given channel,
// joined with the channel's current rating aggregates.
func (r *mysqlTrackRepository) GetChannelTrack(ctx context.Context, channelID, trackID int64) (*model.Track, error) {
	query := `SELECT tracks.id, tracks.title, tracks.artist, tracks.artwork, tracks.media_ref,
	                 tracks.last_played, tracks.plays, tracks.created_at,
	                 IFNULL(ratings_up.up, 0), ratings_up.up_voters,
	                 IFNULL(ratings_down.down, 0), ratings_down.down_voters
	          FROM tracks
	          INNER JOIN channels_tracks
	          ON channels_tracks.channel_id = ? AND channels_tracks.track_id = tracks.id` +
		ratingJoin + `
	          WHERE tracks.id = ?`
	row := r.DB.QueryRowContext(ctx, query, channelID, channelID, channelID, trackID)

	track, err := scanTrackWithRatings(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not associated with this channel
		}
		return nil, fmt.Errorf("failed to scan channel track %d for channel %d: %w", trackID, channelID, err)
	}
	return track, nil
}

// GetTracksByChannel retrieves all tracks of a channel with rating aggregates.
func (r *mysqlTrackRepository) GetTracksByChannel(ctx context.Context, channelID int64) ([]*model.Track, error) {
	query := `SELECT tracks.id, tracks.title, tracks.artist, tracks.artwork, tracks.media_ref,
	                 tracks.last_played, tracks.plays, tracks.created_at,
	                 IFNULL(ratings_up.up, 0), ratings_up.up_voters,
	                 IFNULL(ratings_down.down, 0), ratings_down.down_voters
	          FROM tracks
	          INNER JOIN channels_tracks
	          ON channels_tracks.channel_id = ? AND channels_tracks.track_id = tracks.id` +
		ratingJoin
	rows, err := r.DB.QueryContext(ctx, query, channelID, channelID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for channel %d: %w", channelID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrackWithRatings(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByChannel: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByChannel: %w", err)
	}
	return tracks, nil
}

// RecordPlay bumps last played time and play count for the track globally
// and for its association with the given channel.
func (r *mysqlTrackRepository) RecordPlay(ctx context.Context, trackID, channelID int64) error {
	now := time.Now()

	if _, err := r.DB.ExecContext(ctx,
		"UPDATE tracks SET last_played = ?, plays = plays + 1 WHERE id = ?", now, trackID); err != nil {
		return fmt.Errorf("failed to record play for track %d: %w", trackID, err)
	}

	if channelID > 0 {
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE channels_tracks SET last_played = ?, plays = plays + 1 WHERE track_id = ? AND channel_id = ?",
			now, trackID, channelID); err != nil {
			return fmt.Errorf("failed to record channel play for track %d in channel %d: %w", trackID, channelID, err)
		}
	}
	return nil
}

// PickCandidates returns the weighted-draw candidate pool for a channel.
// Eligible tracks have rested more than half a day and carry fewer than
// three downvotes; weight follows since - down*5 + down.
func (r *mysqlTrackRepository) PickCandidates(ctx context.Context, channelID int64) ([]model.PickCandidate, error) {
	query := `SELECT tracks.id,
	                 TIMESTAMPDIFF(SECOND, IFNULL(channels_tracks.last_played, channels_tracks.added), NOW()) / 86400.0 AS since,
	                 IFNULL(ratings_down.down, 0) AS down,
	                 TIMESTAMPDIFF(SECOND, IFNULL(channels_tracks.last_played, channels_tracks.added), NOW()) / 86400.0
	                   - (IFNULL(ratings_down.down, 0) * 5) + IFNULL(ratings_down.down, 0) AS weight
	          FROM tracks
	          INNER JOIN channels_tracks
	          ON channels_tracks.channel_id = ? AND channels_tracks.track_id = tracks.id
	          LEFT JOIN (SELECT track_id, COUNT(*) AS down FROM track_ratings
	                     WHERE rating < 0 AND channel_id = ? GROUP BY track_id) ratings_down
	          ON ratings_down.track_id = tracks.id
	          HAVING since > 0.5 AND IFNULL(ratings_down.down, 0) < 3
	          ORDER BY weight`
	rows, err := r.DB.QueryContext(ctx, query, channelID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pick candidates for channel %d: %w", channelID, err)
	}
	defer rows.Close()

	candidates := make([]model.PickCandidate, 0)
	for rows.Next() {
		var c model.PickCandidate
		if err := rows.Scan(&c.TrackID, &c.Since, &c.Down, &c.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan pick candidate: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in PickCandidates: %w", err)
	}
	return candidates, nil
}

// scanner 兼容 *sql.Row 与 *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrackWithRatings(s scanner) (*model.Track, error) {
	track := &model.Track{}
	var upVoters, downVoters sql.NullString

	err := s.Scan(&track.ID, &track.Title, &track.Artist, &track.Artwork, &track.MediaRef,
		&track.LastPlayed, &track.Plays, &track.CreatedAt,
		&track.Up, &upVoters, &track.Down, &downVoters)
	if err != nil {
		return nil, err
	}

	if upVoters.Valid && upVoters.String != "" {
		track.UpVoters = strings.Split(upVoters.String, ",")
	}
	if downVoters.Valid && downVoters.String != "" {
		track.DownVoters = strings.Split(downVoters.String, ",")
	}
	return track, nil
}
