package statuscheck

import (
    "context"
    "errors"
    "strings"
    "time"
)

// Pinger is implemented by the queue, the status store and the S3 client.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Versioner reports the version of an external binary.
type Versioner interface {
    Version(ctx context.Context) (string, error)
}

// Checker aggregates health checks for the external dependencies of the
// worker and the CLI.
type Checker struct {
    redis       Pinger
    s3          Pinger
    libreOffice Versioner
    timeout     time.Duration
}

// Options configures the Checker. Nil dependencies are reported as not
// configured.
type Options struct {
    Redis       Pinger
    S3          Pinger
    LibreOffice Versioner
    Timeout     time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis       Status `json:"redis"`
    S3          Status `json:"s3"`
    LibreOffice Status `json:"libreoffice"`
}

// Healthy reports whether every configured dependency answered. Subsystems
// that were never configured do not count.
func (s Summary) Healthy() bool {
    for _, st := range []Status{s.Redis, s.S3, s.LibreOffice} {
        if !st.OK && st.Message != notConfigured { return false }
    }
    return true
}

const notConfigured = "not configured"

func New(opts Options) *Checker {
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Second }
    return &Checker{redis: opts.Redis, s3: opts.S3, libreOffice: opts.LibreOffice, timeout: opts.Timeout}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:       c.ping(ctx, c.redis, "Connected"),
        S3:          c.ping(ctx, c.s3, "Connected"),
        LibreOffice: c.checkLibreOffice(ctx),
    }
}

func (c *Checker) ping(ctx context.Context, p Pinger, okMsg string) Status {
    if p == nil { return Status{OK: false, Message: notConfigured} }
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    if err := p.Ping(ctx); err != nil { return Status{OK: false, Message: trimError(err)} }
    return Status{OK: true, Message: okMsg}
}

func (c *Checker) checkLibreOffice(ctx context.Context) Status {
    if c.libreOffice == nil { return Status{OK: false, Message: notConfigured} }
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    v, err := c.libreOffice.Version(ctx)
    if err != nil { return Status{OK: false, Message: trimError(err)} }
    return Status{OK: true, Message: strings.TrimSpace(v)}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
