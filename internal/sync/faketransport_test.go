package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"ncsync/internal/remote"
)

// fakeTransport is an in-memory remote host. It answers the command shapes
// the engine actually issues (mkdir -p, find, md5sum) and stores copied
// files in a map keyed by remote path.
type fakeTransport struct {
	mu         gosync.Mutex
	connected  bool
	connectErr error

	files     map[string][]byte
	dirs      map[string]struct{}
	findExtra []string // paths listed by find but unreadable by md5sum

	commands     []string
	mkdirs       []string
	copyCalls    int
	copyAttempts int
	failCopy     map[string]error  // keyed by local path
	onCopy       func(attempt int) // runs before each copy attempt
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		files:    make(map[string][]byte),
		dirs:     make(map[string]struct{}),
		failCopy: make(map[string]error),
	}
}

func (f *fakeTransport) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Run(command string, _ time.Duration) (remote.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)

	switch {
	case strings.HasPrefix(command, "mkdir -p '"):
		dir := firstQuoted(command)
		f.dirs[dir] = struct{}{}
		f.mkdirs = append(f.mkdirs, dir)
		return remote.CommandResult{}, nil

	case strings.HasPrefix(command, "find '"):
		root := firstQuoted(command)
		var found []string
		for path := range f.files {
			if path == root || strings.HasPrefix(path, root+"/") {
				found = append(found, path)
			}
		}
		for _, path := range f.findExtra {
			if path == root || strings.HasPrefix(path, root+"/") {
				found = append(found, path)
			}
		}
		sort.Strings(found)
		return remote.CommandResult{Stdout: strings.Join(found, "\n")}, nil

	case strings.HasPrefix(command, "md5sum '"):
		path := firstQuoted(command)
		content, ok := f.files[path]
		if !ok {
			return remote.CommandResult{
				ExitStatus: 1,
				Stderr:     fmt.Sprintf("md5sum: %s: No such file or directory", path),
			}, nil
		}
		sum := md5.Sum(content)
		return remote.CommandResult{Stdout: hex.EncodeToString(sum[:]) + "\n"}, nil
	}
	return remote.CommandResult{}, nil
}

func (f *fakeTransport) Copy(ctx context.Context, localPath, remotePath string) error {
	f.mu.Lock()
	f.copyAttempts++
	attempt := f.copyAttempts
	hook := f.onCopy
	f.mu.Unlock()

	if hook != nil {
		hook(attempt)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.failCopy[localPath]; err != nil {
		return err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = content
	f.copyCalls++
	return nil
}

func (f *fakeTransport) Exists(remotePath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[remotePath]
	return ok, nil
}

func firstQuoted(command string) string {
	start := strings.Index(command, "'")
	if start < 0 {
		return ""
	}
	rest := command[start+1:]
	end := strings.Index(rest, "'")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

var errCopyRefused = errors.New("copy refused")
