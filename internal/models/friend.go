package models

import "time"

// Friend is one direction of an accepted friendship. The presence layer only
// reads these rows to find who to notify on online/offline edges; friendship
// management lives in another service.
type Friend struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;index:idx_friend_pair,unique" json:"userId"`
	FriendID  string    `gorm:"type:uuid;index:idx_friend_pair,unique" json:"friendId"`
	CreatedAt time.Time `json:"createdAt"`
}
