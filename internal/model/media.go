package model

import "time"

// Media is one upload owned by a user. The id is opaque to callers; the
// blob itself lives on disk under BlobPath relative to the media storage root.
type Media struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Extension string    `gorm:"size:16;not null" json:"extension"`
	BlobPath  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
