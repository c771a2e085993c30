package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tsureben-backend/internal/database"
	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
)

// anchorTTL outlives the longest session that can still be recorded.
const anchorTTL = 48 * time.Hour

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RedisRefreshStore struct {
	client *redis.Client
}

func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

func (s *RedisRefreshStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, database.RefreshTokenKey(token), userID, ttl).Err()
}

func (s *RedisRefreshStore) Take(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, database.RefreshTokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRefreshTokenNotFound
	}
	return userID, err
}

func (s *RedisRefreshStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, database.RefreshTokenKey(token)).Err()
}

type RedisAnchorStore struct {
	client *redis.Client
}

func NewRedisAnchorStore(client *redis.Client) *RedisAnchorStore {
	return &RedisAnchorStore{client: client}
}

func (s *RedisAnchorStore) Load(ctx context.Context, userID string) (*pomodoro.Anchor, error) {
	raw, err := s.client.Get(ctx, database.AnchorKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a pomodoro.Anchor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode anchor of %s: %w", userID, err)
	}
	return &a, nil
}

func (s *RedisAnchorStore) Save(ctx context.Context, userID string, a pomodoro.Anchor) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, database.AnchorKey(userID), raw, anchorTTL).Err()
}

func (s *RedisAnchorStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, database.AnchorKey(userID)).Err()
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, data).Err()
}

// RedisChangeSource turns messages on the presence channel into change
// signals. Bursts collapse into one pending signal.
type RedisChangeSource struct {
	client *redis.Client
}

func NewRedisChangeSource(client *redis.Client) *RedisChangeSource {
	return &RedisChangeSource{client: client}
}

func (s *RedisChangeSource) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	pubsub := s.client.Subscribe(ctx, database.PresenceChannel)
	// Wait for the subscription to be confirmed so no change published after
	// Changes returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Warn("presence subscription not confirmed", "err", err)
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

type RedisJobQueue struct {
	client *redis.Client
	queue  string
}

func NewRedisJobQueue(client *redis.Client, queue string) *RedisJobQueue {
	return &RedisJobQueue{client: client, queue: queue}
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, job *models.Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, jobBytes).Err(); err != nil {
		return err
	}
	logger.Debug("job enqueued", "job", job.ID, "type", job.Type, "queue", q.queue)
	return nil
}

type RedisRunMarker struct {
	client *redis.Client
	key    string
}

func NewRedisRunMarker(client *redis.Client, key string) *RedisRunMarker {
	return &RedisRunMarker{client: client, key: key}
}

func (m *RedisRunMarker) LastRun(ctx context.Context) (string, error) {
	v, err := m.client.Get(ctx, m.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (m *RedisRunMarker) MarkRun(ctx context.Context, date string) error {
	return m.client.Set(ctx, m.key, date, 0).Err()
}
