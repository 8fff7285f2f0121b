package orchestrator

import (
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
)

// Prefixes of the temporary files and directories created while processing.
const (
    tempDownloadPrefix = "hlx-dl-"
    tempOutputPrefix   = "hlx-out-"
    libreOfficePrefix  = "libreoffice_profile_"
)

// CleanupTemps removes leftovers of interrupted runs from the temp dir that
// are older than maxAge. It returns the number of entries removed.
func CleanupTemps(maxAge time.Duration) int {
    return cleanupDir(os.TempDir(), maxAge, time.Now())
}

func cleanupDir(dir string, maxAge time.Duration, now time.Time) int {
    entries, err := os.ReadDir(dir)
    if err != nil { return 0 }
    removed := 0
    for _, e := range entries {
        name := e.Name()
        if !(strings.HasPrefix(name, tempDownloadPrefix) || strings.HasPrefix(name, tempOutputPrefix) || strings.HasPrefix(name, libreOfficePrefix)) {
            continue
        }
        info, err := e.Info()
        if err != nil || now.Sub(info.ModTime()) < maxAge { continue }
        if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
            log.Warn().Err(err).Str("file", name).Msg("temp cleanup failed")
            continue
        }
        removed++
    }
    if removed > 0 { log.Info().Int("removed", removed).Msg("temp files cleaned up") }
    return removed
}
