package observers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/postoracle/src/data"
	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/workflow"
)

const defaultStreamLen = 10000

// Stream publishes poll updates, session outcomes and pipeline stages to the Redis status
// stream, and keeps a per-post marker while this process is polling it.
type Stream struct {
	rdb       *redis.Client
	owner     string
	markerTTL time.Duration
	maxLen    int64
	logger    *log.Logger
}

// NewStream writes markers owned by owner that expire after markerTTL unless refreshed.
func NewStream(rdb *redis.Client, owner string, markerTTL time.Duration, logger *log.Logger) *Stream {
	if markerTTL <= 0 {
		markerTTL = time.Minute
	}
	return &Stream{rdb: rdb, owner: owner, markerTTL: markerTTL, maxLen: defaultStreamLen, logger: logging.OrDiscard(logger)}
}

func (s *Stream) Observe(ctx context.Context, u poller.Update) {
	id := u.PostID.String()
	payload := map[string]interface{}{
		"type":          "update",
		"postId":        id,
		"correlationId": u.CorrelationID,
		"tick":          strconv.Itoa(u.Tick),
		"state":         u.State.String(),
	}
	if u.Post != nil {
		payload["status"] = u.Post.Status.String()
		payload["similarityScore"] = strconv.FormatUint(u.Post.SimilarityScore, 10)
		payload["ipfsCid"] = u.Post.IPFSCID
	}
	if u.Err != nil {
		payload["error"] = u.Err.Error()
	}
	s.publish(ctx, payload)

	if u.State == poller.Polling {
		if err := data.MarkSession(ctx, s.rdb, id, s.owner, s.markerTTL); err != nil {
			s.logger.Printf("redis mark session %s: %v", id, err)
		}
	}
}

func (s *Stream) Finished(ctx context.Context, o poller.Outcome) {
	id := o.PostID.String()
	payload := map[string]interface{}{
		"type":          "finished",
		"postId":        id,
		"correlationId": o.CorrelationID,
		"state":         o.State.String(),
		"attempts":      strconv.Itoa(o.Attempts),
	}
	if o.Last != nil {
		payload["status"] = o.Last.Status.String()
	}
	if o.LastErr != nil {
		payload["error"] = o.LastErr.Error()
	}
	s.publish(ctx, payload)

	if err := data.ClearSession(ctx, s.rdb, id); err != nil {
		s.logger.Printf("redis clear session %s: %v", id, err)
	}
}

func (s *Stream) Stage(ctx context.Context, ev workflow.StageEvent) {
	payload := map[string]interface{}{
		"type":          "stage",
		"stage":         string(ev.Stage),
		"correlationId": ev.CorrelationID,
	}
	if ev.PostID != nil {
		payload["postId"] = ev.PostID.String()
	}
	if ev.TxHash != (common.Hash{}) {
		payload["txHash"] = ev.TxHash.Hex()
	}
	if ev.Stage == workflow.StageFailed {
		payload["failedAt"] = string(ev.FailedAt)
		payload["error"] = ev.Err.Error()
	}
	s.publish(ctx, payload)
}

func (s *Stream) publish(ctx context.Context, payload map[string]interface{}) {
	if err := data.PublishStatus(ctx, s.rdb, s.maxLen, payload); err != nil {
		s.logger.Printf("redis publish %s: %s", payload["type"], logging.Describe(err))
	}
}
