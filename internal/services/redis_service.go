package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"presence-service/internal/database"
)

const statusChannel = "user_status"

// StatusUpdate is the message published on the user_status channel so other
// instances can fan the edge out to their own connected clients. Origin
// carries the publishing instance id so subscribers can skip their own edges.
type StatusUpdate struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
	Origin   string `json:"origin"`
}

// RedisService mirrors online/offline edges into redis: an online_users set
// for membership queries, a per-user status hash with TTL, and a pub/sub
// feed. Implements presence.StatusMirror.
type RedisService struct {
	client     *database.RedisClient
	instanceID string
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{client: client, instanceID: uuid.New().String()}
}

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":     "online",
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return r.publishStatus(ctx, userID, true)
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user offline: %w", err)
	}
	return r.publishStatus(ctx, userID, false)
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, "online_users", userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, "online_users").Result()
}

func (r *RedisService) publishStatus(ctx context.Context, userID string, online bool) error {
	payload, err := json.Marshal(StatusUpdate{UserID: userID, IsOnline: online, Origin: r.instanceID})
	if err != nil {
		return err
	}
	return r.client.GetClient().Publish(ctx, statusChannel, payload).Err()
}

// SubscribeStatusUpdates delivers edges published by other instances; our
// own publishes are filtered out so locally-announced edges are not
// duplicated. The channel closes when ctx is cancelled.
func (r *RedisService) SubscribeStatusUpdates(ctx context.Context) <-chan StatusUpdate {
	pubsub := r.client.GetClient().Subscribe(ctx, statusChannel)
	out := make(chan StatusUpdate)

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var update StatusUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					slog.Error("failed to unmarshal status update", "error", err)
					continue
				}
				if update.Origin == r.instanceID {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
