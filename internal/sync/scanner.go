package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"

	"ncsync/internal/hash"
	"ncsync/internal/remote"
)

// DefaultMediaExtensions is the media set synchronized when no explicit
// filter is given.
var DefaultMediaExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp", // images
	".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm", // video
	".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", // audio
}

const (
	remoteFindTimeout  = 10 * time.Minute
	remoteMkdirTimeout = 2 * time.Minute
)

// NormalizeExtensions lowercases extensions and guarantees a leading dot.
func NormalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return DefaultMediaExtensions
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return DefaultMediaExtensions
	}
	return out
}

// IsMediaFile reports whether path matches one of the extensions.
func IsMediaFile(path string, exts []string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// LocalMediaFiles walks the source root and returns all media files in
// lexical order.
func LocalMediaFiles(root string, exts []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsMediaFile(path, exts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan local files under %s: %w", root, err)
	}
	return files, nil
}

// remoteFindCommand builds the find invocation listing existing remote media
// files under root.
func remoteFindCommand(root string, exts []string) string {
	patterns := make([]string, 0, len(exts))
	for _, ext := range exts {
		patterns = append(patterns, fmt.Sprintf("-name '*%s'", ext))
	}
	return fmt.Sprintf(`find '%s' -type f \( %s \)`, root, strings.Join(patterns, " -o "))
}

// ScanRemote hashes every existing remote media file under destRoot into the
// registry. In dry-run mode the scan still runs (it is read-only) but the
// destination mkdir is skipped. Per-file hash failures are logged and
// skipped; a failed listing is returned to the caller, which treats it as
// non-fatal.
func ScanRemote(ctx context.Context, t remote.Transport, registry *DuplicateRegistry, destRoot string, exts []string, logger *slog.Logger, dryRun, showProgress bool) error {
	if !dryRun {
		result, err := t.Run(fmt.Sprintf("mkdir -p '%s'", destRoot), remoteMkdirTimeout)
		if err != nil {
			return fmt.Errorf("create destination %s: %w", destRoot, err)
		}
		if result.ExitStatus != 0 {
			return fmt.Errorf("create destination %s: %s", destRoot, strings.TrimSpace(result.Stderr))
		}
	}

	result, err := t.Run(remoteFindCommand(destRoot, exts), remoteFindTimeout)
	if err != nil {
		return fmt.Errorf("list remote files under %s: %w", destRoot, err)
	}
	if result.ExitStatus != 0 {
		return fmt.Errorf("list remote files under %s: %s", destRoot, strings.TrimSpace(result.Stderr))
	}

	var files []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	logger.Info("scanning existing remote files", "count", len(files), "dest", destRoot)

	var bar *pb.ProgressBar
	if showProgress && len(files) > 0 {
		bar = pb.StartNew(len(files))
		defer bar.Finish()
	}

	for i, remotePath := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		digest, err := hash.Remote(t, remotePath)
		if err != nil {
			logger.Warn("remote hash failed, file excluded from duplicate index",
				"file", remotePath, "error", err)
		} else {
			registry.RegisterRemote(digest, remotePath)
		}
		if bar != nil {
			bar.Increment()
		}
		if (i+1)%50 == 0 {
			logger.Info("remote scan progress", "hashed", i+1, "total", len(files))
		}
	}
	return nil
}
