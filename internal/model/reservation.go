package model

import "time"

// ResourceStatusID is the primary key of the only ResourceStatus row.
const ResourceStatusID = 1

// ResourceStatus is the current state of the WC (single row, hot table).
// Either all of HolderID, OccupiedSince and FunMessage are set, or none is.
type ResourceStatus struct {
	ID            int64 `gorm:"primaryKey;autoIncrement:false"`
	Occupied      bool  `gorm:"not null;default:false"`
	HolderID      *int64
	OccupiedSince *time.Time
	FunMessage    *string `gorm:"size:256"`

	// Associations
	Holder *User `gorm:"foreignKey:HolderID"`
}

// TableName pins the singleton table name.
func (ResourceStatus) TableName() string {
	return "resource_status"
}

// Reservation is one visit in the append-only history log.
// EndedAt and DurationMinutes stay NULL while the visit is open.
type Reservation struct {
	ID              int64     `gorm:"primaryKey"`
	UserID          int64     `gorm:"not null;index"`
	StartedAt       time.Time `gorm:"not null;index"`
	EndedAt         *time.Time
	DurationMinutes *int
	AutoReleased    bool `gorm:"not null;default:false"`

	// Associations
	User User `gorm:"constraint:OnDelete:RESTRICT"`
}
