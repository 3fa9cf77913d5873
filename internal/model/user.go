package model

import "time"

// User is a person who can hold the WC.
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Handle    string    `gorm:"uniqueIndex;size:64;not null" json:"handle"`
	Glyph     string    `gorm:"size:512;not null" json:"glyph"` // Emoji or avatar URL
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}
