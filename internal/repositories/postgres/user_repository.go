package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"presence-service/internal/models"
	"presence-service/internal/presence"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return &user, nil
}

// UsersByIDs implements presence.UserDirectory: display info for membership
// broadcasts. Unknown ids are silently skipped so a stale presence entry
// cannot fail a whole room update.
func (r *UserRepository) UsersByIDs(ctx context.Context, ids []string) ([]presence.RoomUser, error) {
	if len(ids) == 0 {
		return []presence.RoomUser{}, nil
	}
	var users []models.User
	err := r.db.WithContext(ctx).
		Select("id", "username", "avatar").
		Where("id IN ?", ids).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("users lookup: %w", err)
	}

	out := make([]presence.RoomUser, 0, len(users))
	for _, u := range users {
		out = append(out, presence.RoomUser{ID: u.ID, Username: u.Username, Avatar: u.Avatar})
	}
	return out, nil
}
