package postproc

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"ncsync/internal/remote"
)

// recordingTransport logs every executed command and fails the ones matching
// failSubstring with a non-zero exit status.
type recordingTransport struct {
	commands      []string
	failSubstring string
}

func (r *recordingTransport) Connect() error    { return nil }
func (r *recordingTransport) Disconnect() error { return nil }

func (r *recordingTransport) Run(command string, _ time.Duration) (remote.CommandResult, error) {
	r.commands = append(r.commands, command)
	if r.failSubstring != "" && strings.Contains(command, r.failSubstring) {
		return remote.CommandResult{ExitStatus: 1, Stderr: "operation not permitted"}, nil
	}
	return remote.CommandResult{}, nil
}

func (r *recordingTransport) Copy(context.Context, string, string) error { return nil }
func (r *recordingTransport) Exists(string) (bool, error)               { return false, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunExecutesAllSteps(t *testing.T) {
	tr := &recordingTransport{}
	runner := New(tr, testLogger(), "", "")

	if err := runner.Run("/dst/media", false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tr.commands) != 5 {
		t.Fatalf("executed %d commands, want 5: %v", len(tr.commands), tr.commands)
	}

	wantOrder := []string{
		"config:system:set memcache.local",
		"chmod 644",
		"chmod 755",
		"chown -R www-data:www-data '/dst/media'",
		"files:scan --all",
	}
	for i, want := range wantOrder {
		if !strings.Contains(tr.commands[i], want) {
			t.Errorf("command %d = %q, want it to contain %q", i, tr.commands[i], want)
		}
	}
}

func TestRunDefaults(t *testing.T) {
	tr := &recordingTransport{}
	runner := New(tr, testLogger(), "", "")
	if runner.nextcloudPath != "/var/www/nextcloud" {
		t.Errorf("nextcloudPath = %q, want /var/www/nextcloud", runner.nextcloudPath)
	}
	if runner.serviceUser != "www-data" {
		t.Errorf("serviceUser = %q, want www-data", runner.serviceUser)
	}

	custom := New(tr, testLogger(), "/opt/nextcloud", "nextcloud")
	if err := custom.Run("/dst/media", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(tr.commands[len(tr.commands)-1], "php /opt/nextcloud/occ files:scan") {
		t.Errorf("scan command = %q, want custom install path", tr.commands[len(tr.commands)-1])
	}
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	tr := &recordingTransport{}
	runner := New(tr, testLogger(), "", "")

	if err := runner.Run("/dst/media", true); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tr.commands) != 0 {
		t.Errorf("dry-run executed commands: %v", tr.commands)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	tr := &recordingTransport{failSubstring: "chown"}
	runner := New(tr, testLogger(), "", "")

	err := runner.Run("/dst/media", false)
	if err == nil {
		t.Fatal("Run() error = nil, want failure summary")
	}
	if !strings.Contains(err.Error(), "1 of 5") {
		t.Errorf("error = %v, want 1 of 5 steps failed", err)
	}
	if len(tr.commands) != 5 {
		t.Errorf("executed %d commands, want all 5 despite the failure", len(tr.commands))
	}
}
