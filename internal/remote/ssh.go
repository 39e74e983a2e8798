package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHConfig configures the SSH transport. When KeyPath is empty, PasswordFunc
// is invoked once during Connect to obtain the password.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyPath        string
	PasswordFunc   func() (string, error)
	ConnectTimeout time.Duration
}

// SSHTransport implements Transport over a single SSH connection, using one
// exec session per command and an SFTP subsystem channel for file transfer.
type SSHTransport struct {
	cfg    SSHConfig
	client *ssh.Client
	sftp   *sftp.Client
}

// NewSSH creates an unconnected SSH transport.
func NewSSH(cfg SSHConfig) *SSHTransport {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &SSHTransport{cfg: cfg}
}

func (t *SSHTransport) authMethods() ([]ssh.AuthMethod, error) {
	if t.cfg.KeyPath != "" {
		key, err := os.ReadFile(t.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", t.cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", t.cfg.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if t.cfg.PasswordFunc != nil {
		return []ssh.AuthMethod{ssh.PasswordCallback(t.cfg.PasswordFunc)}, nil
	}
	return nil, errors.New("no ssh key and no password source configured")
}

// Connect dials the host and opens the SFTP channel.
func (t *SSHTransport) Connect() error {
	auth, err := t.authMethods()
	if err != nil {
		return err
	}
	config := &ssh.ClientConfig{
		User: t.cfg.User,
		Auth: auth,
		// Host keys are not verified; the target host is provisioned out of
		// band on the same network.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.cfg.ConnectTimeout,
	}
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("ssh connect %s@%s: %w", t.cfg.User, addr, err)
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return fmt.Errorf("open sftp channel: %w", err)
	}
	t.client = client
	t.sftp = sftpClient
	return nil
}

// Disconnect closes the SFTP channel and the SSH connection. Safe to call
// repeatedly.
func (t *SSHTransport) Disconnect() error {
	var err error
	if t.sftp != nil {
		err = t.sftp.Close()
		t.sftp = nil
	}
	if t.client != nil {
		if cerr := t.client.Close(); err == nil {
			err = cerr
		}
		t.client = nil
	}
	return err
}

// Run executes a command in a fresh session, capturing stdout, stderr and the
// exit status. A non-zero exit is reported in the result, not as an error.
func (t *SSHTransport) Run(command string, timeout time.Duration) (CommandResult, error) {
	if t.client == nil {
		return CommandResult{}, errors.New("ssh transport not connected")
	}
	session, err := t.client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	if timeout > 0 {
		select {
		case runErr = <-done:
		case <-time.After(timeout):
			session.Close()
			return CommandResult{}, fmt.Errorf("remote command timed out after %s", timeout)
		}
	} else {
		runErr = <-done
	}

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitStatus = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("run remote command: %w", runErr)
	}
	return result, nil
}

// Copy uploads localPath to remotePath over SFTP, checking the context
// between read chunks so an interrupt stops the transfer promptly.
func (t *SSHTransport) Copy(ctx context.Context, localPath, remotePath string) error {
	if t.sftp == nil {
		return errors.New("ssh transport not connected")
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := t.sftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}

	_, err = io.Copy(dst, &contextReader{ctx: ctx, r: src})
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", localPath, remotePath, err)
	}
	return nil
}

// Exists reports whether a remote path exists, via SFTP stat.
func (t *SSHTransport) Exists(remotePath string) (bool, error) {
	if t.sftp == nil {
		return false, errors.New("ssh transport not connected")
	}
	_, err := t.sftp.Stat(remotePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// contextReader aborts reads once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
