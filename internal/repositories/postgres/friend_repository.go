package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"presence-service/internal/models"
)

// FriendRepository reads the friend graph. Implements presence.FriendLister;
// mutation of friendships belongs to another service.
type FriendRepository struct {
	db *gorm.DB
}

func NewFriendRepository(db *gorm.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

func (r *FriendRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Friend{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("friend lookup: %w", err)
	}
	return ids, nil
}
