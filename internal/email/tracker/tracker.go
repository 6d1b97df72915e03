// Package tracker coordinates the fan-out of one sync cycle across many
// ingestion workers. The progress record is a Redis hash keyed per
// (user, account) with a TTL, so a crashed cycle releases the
// "sync in progress" guard on its own. Every mutation runs as a Lua script:
// the workers race each other and a read-modify-write cycle would lose counts.
package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
)

const (
	// activeTTL keeps a running cycle's record alive long enough for slow
	// mailboxes while still self-clearing after a crash.
	activeTTL = time.Hour
	// terminalTTL lets completed/failed records linger briefly for status
	// queries before the guard frees up.
	terminalTTL = 2 * time.Minute
)

var beginScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 and redis.call("HGET", KEYS[1], "status") == "processing" then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "status", "processing",
  "total", 0,
  "processed", 0,
  "failed", 0,
  "started_at", ARGV[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`)

var markProcessedScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local processed = redis.call("HINCRBY", KEYS[1], "processed", 1)
local total = tonumber(redis.call("HGET", KEYS[1], "total") or "0")
if total > 0 and processed >= total and redis.call("HGET", KEYS[1], "status") == "processing" then
  redis.call("HSET", KEYS[1], "status", "completed", "completed_at", ARGV[1])
  redis.call("EXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var markFailedScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "status", "failed", "error", ARGV[1], "completed_at", ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

// Tracker is the Redis-backed sync progress tracker.
type Tracker struct {
	rdb *goredis.Client
}

// New creates a Tracker on the given Redis client.
func New(rdb *goredis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

func key(userID, accountID string) string {
	return fmt.Sprintf("gmail_sync:%s:%s", userID, accountID)
}

// Begin creates the progress record for a new cycle in processing state.
// It returns domain.ErrSyncAlreadyRunning when a non-terminal record exists:
// this is the mutual-exclusion gate for concurrent sync requests.
func (t *Tracker) Begin(ctx context.Context, userID, accountID string) error {
	ok, err := beginScript.Run(ctx, t.rdb, []string{key(userID, accountID)},
		time.Now().UTC().Format(time.RFC3339),
		int(activeTTL.Seconds()),
	).Int()
	if err != nil {
		return fmt.Errorf("tracker begin: %w", err)
	}
	if ok == 0 {
		return domain.ErrSyncAlreadyRunning
	}
	return nil
}

// SetTotal records how many ingestion jobs this cycle dispatched. Completion
// detection compares the processed counter against this value.
func (t *Tracker) SetTotal(ctx context.Context, userID, accountID string, total int64) error {
	return t.rdb.HSet(ctx, key(userID, accountID), "total", total).Err()
}

// SetMessage attaches a human-readable note to the current record.
func (t *Tracker) SetMessage(ctx context.Context, userID, accountID, message string) error {
	return t.rdb.HSet(ctx, key(userID, accountID), "message", message).Err()
}

// MarkOneProcessed atomically increments the processed counter. The returned
// bool is true exactly once per cycle: for the increment that pushed processed
// past total and flipped the record to completed. Out-of-order worker
// completion is fine because only the counter comparison matters.
func (t *Tracker) MarkOneProcessed(ctx context.Context, userID, accountID string) (bool, error) {
	res, err := markProcessedScript.Run(ctx, t.rdb, []string{key(userID, accountID)},
		time.Now().UTC().Format(time.RFC3339),
		int(terminalTTL.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("tracker mark processed: %w", err)
	}
	return res == 1, nil
}

// MarkOneFailed increments the failed counter. The counter is best-effort
// telemetry: the in-line failure path and the give-up hook may both count the
// same message, which is accepted for a progress estimate.
func (t *Tracker) MarkOneFailed(ctx context.Context, userID, accountID string) error {
	return t.rdb.HIncrBy(ctx, key(userID, accountID), "failed", 1).Err()
}

// MarkFailed flips the cycle to failed and shortens the TTL so the guard
// self-clears quickly.
func (t *Tracker) MarkFailed(ctx context.Context, userID, accountID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return markFailedScript.Run(ctx, t.rdb, []string{key(userID, accountID)},
		msg,
		time.Now().UTC().Format(time.RFC3339),
		int(terminalTTL.Seconds()),
	).Err()
}

// CompleteEmpty flips a cycle that dispatched no work straight to completed,
// keeping a human-readable message (for example the capacity short-circuit)
// visible to status queries for the short terminal TTL.
func (t *Tracker) CompleteEmpty(ctx context.Context, userID, accountID, message string) error {
	k := key(userID, accountID)
	if err := t.rdb.HSet(ctx, k,
		"status", domain.SyncStatusCompleted,
		"message", message,
		"completed_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return err
	}
	return t.rdb.Expire(ctx, k, terminalTTL).Err()
}

// Clear drops the record immediately. Used when a cycle ends with zero work so
// the next sync does not have to wait out the TTL.
func (t *Tracker) Clear(ctx context.Context, userID, accountID string) error {
	return t.rdb.Del(ctx, key(userID, accountID)).Err()
}

// Get returns the progress record, or the idle shape when none exists.
func (t *Tracker) Get(ctx context.Context, userID, accountID string) (*domain.SyncProgress, error) {
	fields, err := t.rdb.HGetAll(ctx, key(userID, accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker get: %w", err)
	}
	if len(fields) == 0 {
		return domain.IdleProgress(), nil
	}

	progress := &domain.SyncProgress{
		Status:  fields["status"],
		Error:   fields["error"],
		Message: fields["message"],
	}
	progress.TotalEmails, _ = strconv.ParseInt(fields["total"], 10, 64)
	progress.Processed, _ = strconv.ParseInt(fields["processed"], 10, 64)
	progress.Failed, _ = strconv.ParseInt(fields["failed"], 10, 64)
	if ts := fields["started_at"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			progress.StartedAt = &parsed
		}
	}
	if ts := fields["completed_at"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			progress.CompletedAt = &parsed
		}
	}
	return progress, nil
}
