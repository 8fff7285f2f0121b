package store

import (
    "context"
    "encoding/json"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Job states written by the worker.
const (
    StatusQueued     = "queued"
    StatusProcessing = "processing"
    StatusSuccess    = "success"
    StatusFailed     = "failed"
    StatusCancelled  = "cancelled"
)

// statusTTL keeps finished jobs queryable for a week.
const statusTTL = 7 * 24 * time.Hour

type Status struct {
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Done reports whether the job reached a final state.
func (s Status) Done() bool {
    return s.Status == StatusSuccess || s.Status == StatusFailed || s.Status == StatusCancelled
}

type RedisStatus struct {
    client *redis.Client
    keyNS  string
}

func NewRedisStatus(redisURL string) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    c := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        _ = c.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return &RedisStatus{client: c, keyNS: "hlx:job"}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, s.key(jobID), toHash(st))
    pipe.Expire(ctx, s.key(jobID), statusTTL)
    _, err := pipe.Exec(ctx)
    return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil { return Status{}, false, err }
    if len(res) == 0 { return Status{}, false, nil }
    return fromHash(res), true, nil
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

func toHash(st Status) map[string]interface{} {
    m := map[string]interface{}{
        "status":   st.Status,
        "progress": st.Progress,
        "message":  st.Message,
    }
    if st.Start != nil { m["start"] = st.Start.Format(time.RFC3339Nano) }
    if st.End != nil { m["end"] = st.End.Format(time.RFC3339Nano) }
    if st.Metadata != nil {
        b, _ := json.Marshal(st.Metadata)
        m["metadata"] = string(b)
    }
    return m
}

func fromHash(res map[string]string) Status {
    st := Status{Status: res["status"], Message: res["message"]}
    // ignore parse error; default 0
    st.Progress, _ = strconv.Atoi(res["progress"])
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.Start = &t }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.End = &t }
    }
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    return st
}
