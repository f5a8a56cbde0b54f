package models

import "time"

// Character represents a show character with its own discussion page.
type Character struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Name      string    `gorm:"not null" json:"name"`
	Bio       string    `gorm:"type:text" json:"bio"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
