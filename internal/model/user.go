package model

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Salt         []byte    `gorm:"size:16;not null" json:"-"`
	SessionKey   string    `gorm:"size:128" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	Uploads      []Media   `gorm:"foreignKey:UserID" json:"uploads,omitempty"`
}
