package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room visibility controls whether a room appears in the public occupancy
// summary pushed to all clients.
const (
	RoomPublic  = "public"
	RoomPrivate = "private"
	RoomSecret  = "secret"
)

type Room struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"_id"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	Visibility string    `gorm:"size:16;not null;default:public" json:"visibility"`
	CreatedBy  string    `gorm:"type:uuid;index" json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
