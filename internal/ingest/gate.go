package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/signalbrief/trends-pipeline/internal/kvstore"
	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/sirupsen/logrus"
)

// DedupTTLSeconds is the rolling lifetime of a stream's seen-id set:
// 3 days, refreshed on every successful add.
const DedupTTLSeconds = 259200

// SeenSetSuffix is appended to a stream key to name its dedup set.
const SeenSetSuffix = ":seen-ids"

// Result summarizes one ProcessAndStore run.
type Result struct {
	Stored           int `json:"stored"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	SkippedNoID      int `json:"skipped_no_id"`
	Errors           int `json:"errors"`
}

// Gate is the per-stream idempotency filter in front of the record list.
// It is best-effort and non-transactional: a crash between the list push
// and the set add can let the next run append a duplicate, which the
// contract accepts.
type Gate struct {
	store    kvstore.Store
	throttle time.Duration
}

// NewGate creates a new dedup gate. throttle is the fixed delay between
// per-post iterations; pass 0 to disable (tests).
func NewGate(store kvstore.Store, throttle time.Duration) *Gate {
	return &Gate{store: store, throttle: throttle}
}

// ProcessAndStore appends each not-yet-seen post to the stream's record
// list and marks its external ID in the seen set. Errors on an individual
// post are logged and do not abort the batch; the deliberate policy is
// throughput over all-or-nothing semantics. Runtime can reach minutes for
// large batches, so callers should run this in the background.
func (g *Gate) ProcessAndStore(ctx context.Context, streamKey string, posts []models.CanonicalPost) Result {
	seenKey := streamKey + SeenSetSuffix
	var res Result

	for i, post := range posts {
		if g.throttle > 0 && i > 0 {
			select {
			case <-ctx.Done():
				logrus.Warnf("Ingest for stream %s canceled after %d/%d posts", streamKey, i, len(posts))
				return res
			case <-time.After(g.throttle):
			}
		}

		if post.ExternalID == "" {
			logrus.Warnf("Skipping post without external ID on stream %s", streamKey)
			res.SkippedNoID++
			continue
		}

		seen, err := g.store.SIsMember(ctx, seenKey, post.ExternalID)
		if err != nil {
			logrus.Errorf("Dedup check failed for post %s on stream %s: %v", post.ExternalID, streamKey, err)
			res.Errors++
			continue
		}
		if seen {
			res.SkippedDuplicate++
			continue
		}

		payload, err := json.Marshal(post)
		if err != nil {
			logrus.Errorf("Failed to serialize post %s: %v", post.ExternalID, err)
			res.Errors++
			continue
		}

		if err := g.store.LPush(ctx, streamKey, string(payload)); err != nil {
			logrus.Errorf("Failed to store post %s on stream %s: %v", post.ExternalID, streamKey, err)
			res.Errors++
			continue
		}

		if err := g.store.SAdd(ctx, seenKey, post.ExternalID); err != nil {
			// The post is stored but unmarked; the next window may append
			// it again, which the contract accepts.
			logrus.Errorf("Failed to mark post %s as seen on stream %s: %v", post.ExternalID, streamKey, err)
			res.Errors++
			res.Stored++
			continue
		}

		if err := g.store.Expire(ctx, seenKey, DedupTTLSeconds); err != nil {
			// Marker exists with a shorter remaining life, which is the
			// conservative direction.
			logrus.Errorf("Failed to refresh TTL on %s: %v", seenKey, err)
			res.Errors++
		}

		res.Stored++
	}

	logrus.Infof("Ingest for stream %s done: %d stored, %d duplicates, %d without ID, %d errors",
		streamKey, res.Stored, res.SkippedDuplicate, res.SkippedNoID, res.Errors)

	return res
}
