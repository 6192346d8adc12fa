// End-to-end check against a running postoracle API with a funded wallet.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	baseURL  = getenv("API_URL", "http://localhost:8080")
	redisURL = getenv("REDIS_URL", "")
	token    = getenv("API_TOKEN", "")
	deadline = 2 * time.Minute
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	ctx := context.Background()

	doReq("GET", "/healthz", nil, nil, http.StatusOK)

	var rdb *redis.Client
	lastID := "$"
	if redisURL != "" {
		rdb = mustRedis()
		defer rdb.Close()
		lastID = streamTail(ctx, rdb)
	}

	postID, corr := submit()
	log.Printf("submitted post %s (correlation %s)", postID, corr)

	state := followSession(postID)
	log.Printf("session ended: %s", state)

	var post struct {
		Status   string
		Terminal bool
	}
	doReq("GET", "/v1/posts/"+postID, nil, &post, http.StatusOK)
	log.Printf("ledger status: %s", post.Status)

	if rdb != nil {
		checkStream(ctx, rdb, lastID, corr)
	}
	fmt.Println("✓ all endpoints passed")
}

// ----------------------------- posts

func submit() (string, string) {
	var resp struct {
		PostID        string
		TxHash        string
		CorrelationID string
	}
	doReq("POST", "/v1/posts", map[string]any{
		"username": "smoke-" + uuid.NewString()[:8],
		"content":  "integration-test " + uuid.NewString(),
	}, &resp, http.StatusAccepted)
	if resp.PostID == "" || resp.TxHash == "" {
		log.Fatal("submit: missing postId or txHash")
	}
	return resp.PostID, resp.CorrelationID
}

func followSession(postID string) string {
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		var s struct {
			State    string
			Attempts int
		}
		status := doReq("GET", "/v1/posts/"+postID+"/session", nil, &s, 0)
		if status == http.StatusNotFound {
			// session already ended and was released
			return "ended"
		}
		if s.State != "Polling" && s.State != "Idle" {
			return s.State
		}
		time.Sleep(2 * time.Second)
	}
	log.Fatal("session: still polling at deadline")
	return ""
}

// ----------------------------- redis

func streamTail(ctx context.Context, rdb *redis.Client) string {
	msgs, err := rdb.XRevRangeN(ctx, "postoracle.status", "+", "-", 1).Result()
	if err != nil || len(msgs) == 0 {
		return "0"
	}
	return msgs[0].ID
}

func checkStream(ctx context.Context, rdb *redis.Client, after, corr string) {
	streams, err := rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{"postoracle.status", after},
		Count:   500,
		Block:   time.Second,
	}).Result()
	if err != nil {
		log.Fatalf("redis xread: %v", err)
	}
	var updates, finished int
	for _, s := range streams {
		for _, m := range s.Messages {
			if m.Values["correlationId"] != corr {
				continue
			}
			switch m.Values["type"] {
			case "update":
				updates++
			case "finished":
				finished++
			}
		}
	}
	if updates == 0 || finished != 1 {
		log.Fatalf("redis: want >0 updates and 1 finished event, got %d/%d", updates, finished)
	}
	log.Printf("redis: %d updates, %d finished", updates, finished)
}

// ----------------------------- helpers

func mustRedis() *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	return redis.NewClient(opt)
}

// doReq fails unless the status equals want; want 0 accepts 200 or 404.
func doReq(method, path string, body, out any, want int) int {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	switch {
	case want == 0 && (res.StatusCode == http.StatusOK || res.StatusCode == http.StatusNotFound):
	case res.StatusCode != want:
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}
