// Package remote provides the execution and file-transfer channel to the
// Nextcloud host. The sync engine only depends on the Transport interface;
// the SSH implementation lives in ssh.go.
package remote

import (
	"context"
	"time"
)

// CommandResult is the outcome of one remote command.
type CommandResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Transport is the remote shell and file-copy channel consumed by the sync
// engine. Implementations must be safe for sequential use after Connect and
// must tolerate Disconnect being called more than once.
type Transport interface {
	Connect() error
	Disconnect() error

	// Run executes a shell command remotely. A non-zero exit status is not
	// an error; it is reported through CommandResult.
	Run(command string, timeout time.Duration) (CommandResult, error)

	// Copy uploads a local file to the remote path. It honors context
	// cancellation mid-transfer.
	Copy(ctx context.Context, localPath, remotePath string) error

	// Exists reports whether a remote path exists.
	Exists(remotePath string) (bool, error)
}
