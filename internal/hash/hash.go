// Package hash computes content digests for local and remote files. MD5 is
// fixed by the wire contract: local digests must compare equal to the output
// of md5sum on the Nextcloud host.
package hash

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ncsync/internal/remote"
)

const remoteHashTimeout = 5 * time.Minute

// Local streams a local file through MD5 and returns the hex digest. The
// digest depends only on file content, never on path or metadata.
func Local(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remote computes the MD5 of a remote file by running md5sum through the
// transport and parsing its single-token output.
func Remote(t remote.Transport, remotePath string) (string, error) {
	cmd := fmt.Sprintf("md5sum '%s' | cut -d' ' -f1", remotePath)
	result, err := t.Run(cmd, remoteHashTimeout)
	if err != nil {
		return "", err
	}
	if result.ExitStatus != 0 || strings.TrimSpace(result.Stderr) != "" {
		return "", fmt.Errorf("remote hash of %s failed: %s", remotePath, strings.TrimSpace(result.Stderr))
	}
	digest := strings.TrimSpace(result.Stdout)
	if digest == "" {
		return "", fmt.Errorf("remote hash of %s returned no output", remotePath)
	}
	return digest, nil
}
