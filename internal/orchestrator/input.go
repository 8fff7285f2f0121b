package orchestrator

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "os"
    "path"
    "strings"

    "github.com/rs/zerolog/log"
)

// RemoteStore reads inputs from and writes outputs to object storage.
type RemoteStore interface {
    Download(ctx context.Context, ref, password string) ([]byte, error)
    Upload(ctx context.Context, ref string, body io.Reader, contentType, password string) error
}

// maxDownload caps http(s) inputs.
const maxDownload = 512 << 20

// httpClient is replaced in tests.
var httpClient = http.DefaultClient

func isS3(ref string) bool { return strings.HasPrefix(ref, "s3://") }

func isHTTP(ref string) bool {
    return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func isRemote(ref string) bool { return isS3(ref) || isHTTP(ref) }

// localPath strips file:// and any #page fragment from a filesystem reference.
func localPath(ref string) string {
    ref = strings.TrimPrefix(ref, "file://")
    if i := strings.Index(ref, "#"); i >= 0 { ref = ref[:i] }
    return ref
}

// refBase returns the file name of a path, URL or s3 reference.
func refBase(ref string) string {
    if isHTTP(ref) {
        if u, err := url.Parse(ref); err == nil { return path.Base(u.Path) }
    }
    if isS3(ref) { return path.Base(strings.TrimPrefix(ref, "s3://")) }
    p := localPath(ref)
    // accept both separators
    if i := strings.LastIndexAny(p, `/\`); i >= 0 { p = p[i+1:] }
    return p
}

// readInput loads the PDF referenced by ref. Supports:
// - file://path or absolute/relative filesystem paths
// - http(s):// URLs (downloaded through a temp file)
// - s3://bucket/key (via the RemoteStore)
func readInput(ctx context.Context, ref string, opts Options) ([]byte, error) {
    switch {
    case isS3(ref):
        if opts.Remote == nil { return nil, fmt.Errorf("%s: s3 storage is not configured", ref) }
        return opts.Remote.Download(ctx, ref, opts.Password)
    case isHTTP(ref):
        p, err := downloadHTTPToTemp(ctx, ref)
        if err != nil { return nil, err }
        defer os.Remove(p)
        return os.ReadFile(p)
    default:
        data, err := os.ReadFile(localPath(ref))
        if errors.Is(err, os.ErrNotExist) { return nil, fmt.Errorf("%w: %s", ErrInputNotFound, ref) }
        return data, err
    }
}

func downloadHTTPToTemp(ctx context.Context, rawURL string) (string, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
    if err != nil { return "", err }
    resp, err := httpClient.Do(req)
    if err != nil { return "", err }
    defer resp.Body.Close()
    switch {
    case resp.StatusCode == http.StatusNotFound:
        return "", fmt.Errorf("%w: %s", ErrInputNotFound, rawURL)
    case resp.StatusCode != http.StatusOK:
        return "", fmt.Errorf("http %d", resp.StatusCode)
    }
    f, err := os.CreateTemp("", tempDownloadPrefix+"*.pdf")
    if err != nil { return "", err }
    defer f.Close()
    n, err := io.Copy(f, io.LimitReader(resp.Body, maxDownload+1))
    if err == nil && n > maxDownload { err = fmt.Errorf("download exceeds %d bytes", maxDownload) }
    if err != nil {
        _ = os.Remove(f.Name())
        return "", err
    }
    log.Debug().Str("url", rawURL).Int64("size", n).Str("file", f.Name()).Msg("downloaded pdf to temp")
    return f.Name(), nil
}
