package db

import (
	"database/sql"
	"fmt"
	"log"

	"WaveFM/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createChannelsTable(); err != nil {
		return err
	}
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createChannelTracksTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createChannelsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS channels (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		artwork VARCHAR(767),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create channels table: %w", err)
	}
	log.Println("Channels table initialized successfully (or already exists).")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		artist VARCHAR(255),
		artwork VARCHAR(767),
		media_ref VARCHAR(255),
		last_played TIMESTAMP NULL DEFAULT NULL,
		plays INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	log.Println("Tracks table initialized successfully (or already exists).")
	return nil
}

func createChannelTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS channels_tracks (
		channel_id INT NOT NULL,
		track_id BIGINT NOT NULL,
		added TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_played TIMESTAMP NULL DEFAULT NULL,
		plays INT NOT NULL DEFAULT 0,
		PRIMARY KEY (channel_id, track_id),
		CONSTRAINT fk_ct_channel FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
		CONSTRAINT fk_ct_track FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create channels_tracks table: %w", err)
	}
	log.Println("Channel tracks table initialized successfully (or already exists).")
	return nil
}
