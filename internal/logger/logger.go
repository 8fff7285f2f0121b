package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
    defaultService = "hlextract"
    batchSize      = 200
    bufferSize     = 1000
)

// Options defines logger initialization parameters.
type Options struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool

    // Service is attached to every event forwarded to Axiom.
    Service string
    // Console receives the human or JSON stream; stderr when nil so that
    // stdout stays free for CLI progress lines.
    Console io.Writer

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

var (
    global zerolog.Logger
    sink   *axiomSink
)

// Init sets up global logger: file rotation, console, optional Axiom forwarding.
func Init(opts Options) error {
    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
    }
    if opts.Service == "" { opts.Service = defaultService }
    console := opts.Console
    if console == nil { console = os.Stderr }

    var writers []io.Writer
    if opts.File != "" {
        writers = append(writers, &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        })
    }
    if opts.Pretty {
        writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
    } else {
        writers = append(writers, console)
    }

    // Optional Axiom writer (info+)
    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        s, err := newAxiomSink(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            sink = s
            writers = append(writers, &axiomWriter{sink: s, service: opts.Service})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" {
        lvl = zerolog.InfoLevel
    }

    global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Logger()
    log.Logger = global
    return nil
}

// Close flushes any buffered external loggers.
func Close() {
    if sink != nil {
        sink.Close()
        sink = nil
    }
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// ForFile returns a child logger tagged with the input being processed.
func ForFile(file string) zerolog.Logger {
    return log.Logger.With().Str("file", file).Logger()
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug level).
type axiomWriter struct {
    sink    *axiomSink
    service string
}

func (w *axiomWriter) Write(p []byte) (int, error) {
    var ev map[string]interface{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]interface{}{"message": string(p), "level": "info"}
    }
    if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
        return len(p), nil
    }
    ev["service"] = w.service
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.sink.Send(axiom.Event(ev))
    return len(p), nil
}

// axiomSink batches events and ingests them on a timer or when a batch fills up.
type axiomSink struct {
    client  *axiom.Client
    dataset string
    ch      chan axiom.Event
    wg      sync.WaitGroup
    ctx     context.Context
    cancel  context.CancelFunc
}

func newAxiomSink(token, orgID, dataset string, flushEvery time.Duration) (*axiomSink, error) {
    if dataset == "" { dataset = "dev_" + defaultService }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    ctx, cancel := context.WithCancel(context.Background())
    s := &axiomSink{
        client:  c,
        dataset: dataset,
        ch:      make(chan axiom.Event, bufferSize),
        ctx:     ctx,
        cancel:  cancel,
    }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }
    s.wg.Add(1)
    go s.loop(flushEvery)
    return s, nil
}

// Send queues ev; events are dropped when the buffer is full.
func (s *axiomSink) Send(ev axiom.Event) {
    select {
    case s.ch <- ev:
    default:
    }
}

func (s *axiomSink) loop(flushEvery time.Duration) {
    defer s.wg.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, batchSize)
    flush := func() {
        if len(batch) == 0 { return }
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        if _, err := s.client.IngestEvents(ctx, s.dataset, batch); err != nil {
            fmt.Fprintf(os.Stderr, "axiom ingest failed: %v\n", err)
        }
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-s.ctx.Done():
            // drain what is already queued
            for {
                select {
                case ev := <-s.ch:
                    batch = append(batch, ev)
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-s.ch:
            batch = append(batch, ev)
            if len(batch) >= batchSize { flush() }
        }
    }
}

func (s *axiomSink) Close() {
    s.cancel()
    s.wg.Wait()
}
