package config

import (
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ExtractConfig holds the extraction defaults. CLI flags override them.
type ExtractConfig struct {
    Quality             int
    TwoColumns          bool
    OutputFolder        string
    Format              string
    MarginLeft          float64
    MarginTop           float64
    MarginRight         float64
    MarginBottom        float64
    DilateIterations    int
    ExclusionIterations int
    DetectScale         float64
    MinImageHeight      float64
    NominalDPI          float64
    Jobs                int
    MetricsFile         string
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency        int
    JobTimeout         time.Duration
    LibreOfficeTimeout time.Duration
    TempMaxAge         time.Duration
    LibreOfficeBinary  string
    Port               string
    WebUsername        string
    WebPassword        string
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
}

// StorageConfig holds S3 settings for remote inputs and outputs.
type StorageConfig struct {
    Bucket   string
    Password string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    Extract ExtractConfig
    Worker  WorkerConfig
    Queue   QueueConfig
    Storage StorageConfig
}

// Load reads an optional .env file into the process environment (existing
// variables win) and then returns FromEnv.
func Load(files ...string) Config {
    if len(files) == 0 { files = []string{".env"} }
    for _, f := range files {
        if _, err := os.Stat(f); err != nil { continue }
        if err := godotenv.Load(f); err != nil {
            log.Warn().Err(err).Str("file", f).Msg("failed to load env file")
        }
    }
    return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", ""),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_hlextract",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // Extraction defaults
    cfg.Extract = ExtractConfig{
        Quality:             parseInt(getEnv("HLX_QUALITY", "100"), 100),
        TwoColumns:          parseBool(getEnv("HLX_TWO_COLUMNS", "false")),
        OutputFolder:        getEnv("HLX_OUTPUT_FOLDER", ""),
        Format:              getEnv("HLX_FORMAT", "odt"),
        MarginLeft:          parseFloat(getEnv("HLX_MARGIN_LEFT", "10"), 10),
        MarginTop:           parseFloat(getEnv("HLX_MARGIN_TOP", "5"), 5),
        MarginRight:         parseFloat(getEnv("HLX_MARGIN_RIGHT", "25"), 25),
        MarginBottom:        parseFloat(getEnv("HLX_MARGIN_BOTTOM", "5"), 5),
        DilateIterations:    parseInt(getEnv("HLX_DILATE_ITERATIONS", "10"), 10),
        ExclusionIterations: parseInt(getEnv("HLX_EXCLUSION_ITERATIONS", "10"), 10),
        DetectScale:         parseFloat(getEnv("HLX_DETECT_SCALE", "1"), 1),
        MinImageHeight:      parseFloat(getEnv("HLX_MIN_IMAGE_HEIGHT", "20"), 20),
        NominalDPI:          parseFloat(getEnv("HLX_NOMINAL_DPI", "96"), 96),
        Jobs:                parseInt(getEnv("HLX_JOBS", "1"), 1),
        MetricsFile:         getEnv("HLX_METRICS_FILE", ""),
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
        JobTimeout:         parseDuration(getEnv("JOB_TIMEOUT", "10m"), 10*time.Minute),
        LibreOfficeTimeout: parseDuration(getEnv("LIBREOFFICE_TIMEOUT", "120s"), 120*time.Second),
        TempMaxAge:         parseDuration(getEnv("TEMP_MAX_AGE", "1h"), time.Hour),
        LibreOfficeBinary:  getEnv("LIBREOFFICE_BIN", "libreoffice"),
        Port:               getEnv("PORT", "8080"),
        WebUsername:        getEnv("WEB_USERNAME", ""),
        WebPassword:        getEnv("WEB_PASSWORD", ""),
    }
    if cfg.Worker.Concurrency < 1 { cfg.Worker.Concurrency = 1 }

    // Queue defaults
    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:hlextract"),
        Group:        getEnv("QUEUE_GROUP", "workers:hlextract"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
    }

    cfg.Storage = StorageConfig{
        Bucket:   getEnv("AWS_S3_BUCKET", ""),
        Password: getEnv("S3_PASSWORD", ""),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
