package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	PresenceChannel  = "presence_updates"
	BulkRenameQueue  = "queue:bulk-rename"
	RollupMarkerKey  = "rollup:last-run"
	userUpdatesTopic = "user_updates:"
)

func UserUpdatesChannel(userID string) string { return userUpdatesTopic + userID }
func RefreshTokenKey(token string) string { return "refresh:" + token }
func AnchorKey(userID string) string { return "pomodoro:anchor:" + userID }
func JobLockKey(jobID string) string { return "job_lock:" + jobID }

// RedisClients keeps blocking queue reads off the connection used for
// subscriptions.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queueClient := redis.NewClient(opt)
	if err := queueClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (queue): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		queueClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
