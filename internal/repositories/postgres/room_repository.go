package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"presence-service/internal/models"
	"presence-service/internal/presence"
)

// RoomRepository reads room metadata. It implements presence.RoomStore; the
// presence core never writes rooms.
type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (*presence.RoomMeta, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("room %s: %w", roomID, presence.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("room lookup: %w", err)
	}
	return &presence.RoomMeta{
		ID:         room.ID,
		Name:       room.Name,
		Visibility: room.Visibility,
		CreatedBy:  room.CreatedBy,
	}, nil
}

func (r *RoomRepository) ListPublic(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).
		Where("visibility = ?", models.RoomPublic).
		Order("created_at").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list public rooms: %w", err)
	}
	return rooms, nil
}

func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}
