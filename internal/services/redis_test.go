package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"tsureben-backend/internal/database"
)

// Requires a live redis; set TEST_REDIS_URL to run.
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisChangeSource_SeesPublishRightAfterReturn(t *testing.T) {
	client := testRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := NewRedisChangeSource(client).Changes(ctx)
	if err := client.Publish(ctx, database.PresenceChannel, "changed").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the change published right after subscribing")
	}
}
