package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// JobOptions carries the per-job overrides of the worker's extraction defaults.
type JobOptions struct {
    TwoColumns   bool   `json:"two_columns,omitempty"`
    Quality      int    `json:"quality,omitempty"`
    Format       string `json:"format,omitempty"`
    OutputFolder string `json:"output_folder,omitempty"`
}

// Job is one queued extraction.
type Job struct {
    ID      string     `json:"job_id"`
    Input   string     `json:"input"`
    Options JobOptions `json:"options"`
    Attempt int        `json:"attempt"`
}

// Encode returns the JSON payload stored in the stream.
func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// DecodeJob parses a stream payload.
func DecodeJob(payload []byte) (Job, error) {
    var j Job
    if err := json.Unmarshal(payload, &j); err != nil {
        return Job{}, fmt.Errorf("decode job: %w", err)
    }
    if j.ID == "" || j.Input == "" {
        return Job{}, fmt.Errorf("decode job: missing job_id or input")
    }
    return j, nil
}

// RedisQueue implements Redis Streams + consumer groups with a delayed ZSET mover.
type RedisQueue struct {
    client       *redis.Client
    // streams / groups
    Stream       string
    Group        string
    // keys
    CancelKey    string
    DelayedKey   string
    DLQStream    string
    // mover control
    pollInterval time.Duration
    stop         chan struct{}
}

// NewRedisQueue connects to Redis, ensures stream & group, and starts delayed mover.
func NewRedisQueue(redisURL, stream, group string, poll time.Duration) (*RedisQueue, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil {
        return nil, fmt.Errorf("parse redis url: %w", err)
    }
    c := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        _ = c.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    q := newRedisQueue(c, stream, group, poll)
    // MKSTREAM creates the stream if missing
    if err := c.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil && !isBusyGroupErr(err) {
        _ = c.Close()
        return nil, fmt.Errorf("xgroup create: %w", err)
    }
    go q.mover()
    return q, nil
}

func newRedisQueue(c *redis.Client, stream, group string, poll time.Duration) *RedisQueue {
    return &RedisQueue{
        client:       c,
        Stream:       stream,
        Group:        group,
        CancelKey:    stream + ":cancelled",
        DelayedKey:   stream + ":delayed",
        DLQStream:    stream + ":dlq",
        pollInterval: poll,
        stop:         make(chan struct{}),
    }
}

func isBusyGroupErr(err error) bool {
    if err == nil { return false }
    // go-redis returns the raw Redis error string
    return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error {
    close(q.stop)
    return q.client.Close()
}

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds a job to the stream as a single-field entry {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
    payload, err := job.Encode()
    if err != nil { return err }
    return q.client.XAdd(ctx, &redis.XAddArgs{
        Stream: q.Stream,
        Values: map[string]any{"data": string(payload)},
    }).Err()
}

// EnqueueDelayed schedules a retry for later execution via ZSET.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job Job, executeAt time.Time) error {
    payload, err := job.Encode()
    if err != nil { return err }
    return q.client.ZAdd(ctx, q.DelayedKey, redis.Z{Score: float64(executeAt.Unix()), Member: string(payload)}).Err()
}

// ErrMalformed is returned by Dequeue for entries that cannot be decoded.
// The message id is still returned so the caller can ack and dead-letter it.
var ErrMalformed = errors.New("malformed queue entry")

// Dequeue reads one message from the consumer group. It returns an empty id
// when the block timeout passes without a message.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, Job, []byte, error) {
    res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
        Group:    q.Group,
        Consumer: consumer,
        Streams:  []string{q.Stream, ">"},
        Count:    1,
        Block:    timeout,
    }).Result()
    if err != nil {
        if errors.Is(err, redis.Nil) { return "", Job{}, nil, nil }
        return "", Job{}, nil, err
    }
    if len(res) == 0 || len(res[0].Messages) == 0 { return "", Job{}, nil, nil }
    msg := res[0].Messages[0]
    payload := payloadOf(msg.Values)
    job, err := DecodeJob(payload)
    if err != nil {
        return msg.ID, Job{}, payload, fmt.Errorf("%w: %v", ErrMalformed, err)
    }
    return msg.ID, job, payload, nil
}

func payloadOf(values map[string]any) []byte {
    switch t := values["data"].(type) {
    case string:
        return []byte(t)
    case []byte:
        return t
    }
    return nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
    if msgID == "" { return nil }
    return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// CancelJob marks a job as cancelled. Workers check this before processing.
func (q *RedisQueue) CancelJob(ctx context.Context, jobID string) error {
    return q.client.SAdd(ctx, q.CancelKey, jobID).Err()
}

// IsCancelled returns true if job is cancelled.
func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
    return q.client.SIsMember(ctx, q.CancelKey, jobID).Result()
}

// AddDLQ pushes a failed job to DLQ stream with reason.
func (q *RedisQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
    return q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.DLQStream, Values: map[string]any{"data": string(payload), "reason": reason}}).Err()
}

// mover periodically moves due delayed jobs from ZSET into the stream.
func (q *RedisQueue) mover() {
    if q.pollInterval <= 0 { q.pollInterval = 200 * time.Millisecond }
    ticker := time.NewTicker(q.pollInterval)
    defer ticker.Stop()
    for {
        select {
        case <-q.stop:
            return
        case <-ticker.C:
            q.moveOnce()
        }
    }
}

func (q *RedisQueue) moveOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    now := time.Now().Unix()
    // Fetch up to 100 ready items
    vals, err := q.client.ZRangeByScore(ctx, q.DelayedKey, &redis.ZRangeBy{
        Min: "-inf", Max: fmt.Sprintf("%d", now), Offset: 0, Count: 100,
    }).Result()
    if err != nil || len(vals) == 0 { return }
    pipe := q.client.TxPipeline()
    for _, s := range vals {
        pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.Stream, Values: map[string]any{"data": s}})
        pipe.ZRem(ctx, q.DelayedKey, s)
    }
    _, _ = pipe.Exec(ctx)
}

// Depths returns approximate stream/deferred/dlq lengths for metrics.
func (q *RedisQueue) Depths(ctx context.Context) (int64, int64, int64, error) {
    pipe := q.client.Pipeline()
    xlen := pipe.XLen(ctx, q.Stream)
    zcard := pipe.ZCard(ctx, q.DelayedKey)
    dxlen := pipe.XLen(ctx, q.DLQStream)
    if _, err := pipe.Exec(ctx); err != nil { return 0, 0, 0, err }
    return xlen.Val(), zcard.Val(), dxlen.Val(), nil
}
