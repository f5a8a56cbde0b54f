package models

import "time"

// Episode represents a single South Park episode available for streaming.
type Episode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"size:160;not null;uniqueIndex" json:"slug"`
	Title     string    `gorm:"not null" json:"title"`
	Season    int       `gorm:"not null;index:idx_episode_season_number" json:"season"`
	Number    int       `gorm:"not null;index:idx_episode_season_number" json:"number"`
	Synopsis  string    `gorm:"type:text" json:"synopsis"`
	VideoURL  string    `json:"video_url"`
	AirDate   time.Time `json:"air_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
