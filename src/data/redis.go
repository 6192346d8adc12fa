package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StatusStream receives one entry per applied poll update.
	StatusStream  = "postoracle.status"
	sessionPrefix = "postoracle:session:"
)

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// PublishStatus appends payload to the status stream, trimmed to roughly maxLen entries.
func PublishStatus(ctx context.Context, rdb *redis.Client, maxLen int64, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StatusStream,
		MaxLen: maxLen,
		Approx: maxLen > 0,
		Values: payload,
	}).Result()
	return err
}

// MarkSession records that this process is polling postID. The key expires after ttl.
func MarkSession(ctx context.Context, rdb *redis.Client, postID, owner string, ttl time.Duration) error {
	return rdb.Set(ctx, sessionPrefix+postID, owner, ttl).Err()
}

// ClearSession removes the marker written by MarkSession.
func ClearSession(ctx context.Context, rdb *redis.Client, postID string) error {
	return rdb.Del(ctx, sessionPrefix+postID).Err()
}

// SessionOwner returns the marker value, or "" when none is set.
func SessionOwner(ctx context.Context, rdb *redis.Client, postID string) (string, error) {
	v, err := rdb.Get(ctx, sessionPrefix+postID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}
