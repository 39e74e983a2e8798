// Package postproc runs the Nextcloud housekeeping commands after a sync:
// permission normalization, ownership assignment, cache configuration, and
// the file-cache rescan. The sync engine only consumes the overall outcome.
package postproc

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ncsync/internal/remote"
)

const (
	commandTimeout = 10 * time.Minute
	scanTimeout    = 30 * time.Minute
)

// Runner executes post-sync housekeeping through the remote transport.
type Runner struct {
	transport     remote.Transport
	logger        *slog.Logger
	nextcloudPath string
	serviceUser   string
}

// New creates a Runner. nextcloudPath defaults to the standard install
// location and serviceUser to www-data when empty.
func New(transport remote.Transport, logger *slog.Logger, nextcloudPath, serviceUser string) *Runner {
	if nextcloudPath == "" {
		nextcloudPath = "/var/www/nextcloud"
	}
	if serviceUser == "" {
		serviceUser = "www-data"
	}
	return &Runner{
		transport:     transport,
		logger:        logger,
		nextcloudPath: nextcloudPath,
		serviceUser:   serviceUser,
	}
}

type step struct {
	name    string
	command string
	timeout time.Duration
}

func (r *Runner) steps(targetPath string) []step {
	occ := fmt.Sprintf(`su -c "php %s/occ files:scan --all" %s -s /bin/bash`,
		r.nextcloudPath, r.serviceUser)
	cacheCfg := fmt.Sprintf(`cd %s && sudo -u %s php occ config:system:set memcache.local --value='\OC\Memcache\ArrayCache' --type=string`,
		r.nextcloudPath, r.serviceUser)
	return []step{
		{"cache configuration", cacheCfg, commandTimeout},
		{"file permissions", fmt.Sprintf(`find '%s' -type f -exec chmod 644 {} +`, targetPath), commandTimeout},
		{"directory permissions", fmt.Sprintf(`find '%s' -type d -exec chmod 755 {} +`, targetPath), commandTimeout},
		{"ownership", fmt.Sprintf(`chown -R %s:%s '%s'`, r.serviceUser, r.serviceUser, targetPath), commandTimeout},
		{"file cache rescan", occ, scanTimeout},
	}
}

// Run executes every housekeeping step against targetPath, continuing past
// individual failures. Dry runs log the exact commands without executing
// anything. A non-nil error means at least one step failed.
func (r *Runner) Run(targetPath string, dryRun bool) error {
	steps := r.steps(targetPath)

	if dryRun {
		for _, st := range steps {
			r.logger.Info("simulated post-sync command", "step", st.name, "command", st.command)
		}
		return nil
	}

	r.logger.Info("running post-sync commands", "target", targetPath)
	failed := 0
	for _, st := range steps {
		r.logger.Info("post-sync step", "step", st.name)
		result, err := r.transport.Run(st.command, st.timeout)
		if err != nil {
			r.logger.Error("post-sync step failed", "step", st.name, "error", err)
			failed++
			continue
		}
		if result.ExitStatus != 0 {
			r.logger.Error("post-sync step failed", "step", st.name,
				"exit_status", result.ExitStatus, "stderr", strings.TrimSpace(result.Stderr))
			failed++
			continue
		}
		r.logger.Info("post-sync step completed", "step", st.name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d post-sync steps failed", failed, len(steps))
	}
	return nil
}
