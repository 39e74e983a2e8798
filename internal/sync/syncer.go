// Package sync implements the synchronization engine: the duplicate
// registry, the per-file transfer pipeline, and the session controller that
// drives a resumable run end to end.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cheggaaa/pb/v3"

	"ncsync/internal/db"
	"ncsync/internal/remote"
	"ncsync/pkg/models"
)

// PostProcessor is the housekeeping hook invoked after a run that changed
// the destination (always invoked for dry runs, for audit purposes).
type PostProcessor interface {
	Run(targetPath string, dryRun bool) error
}

// Options configures one synchronization run.
type Options struct {
	SourceRoot string
	DestRoot   string
	Extensions []string
	DryRun     bool

	// ForceNew marks any incomplete session INTERRUPTED and starts fresh.
	ForceNew bool
	// ResumeID forces resumption from a specific session.
	ResumeID int64
	// Confirm is asked whether to resume a detected incomplete session.
	// A nil Confirm declines, so a run never silently resumes.
	Confirm func(prompt string) bool

	Logger   *slog.Logger
	Progress bool
	PostProc PostProcessor
}

// Result summarizes a finished (or stopped) run.
type Result struct {
	SyncID        int64
	ResumedFromID int64
	Status        string
	Duration      time.Duration
	Report        *Report
}

// Interrupted reports whether the run was stopped by a cancellation signal.
func (r *Result) Interrupted() bool {
	return r.Status == models.StatusInterrupted
}

// Syncer is the session controller.
type Syncer struct {
	store     *db.DB
	transport remote.Transport
	opts      Options
	registry  *DuplicateRegistry
	report    *Report
	logger    *slog.Logger
}

// NewSyncer creates a session controller over the given store and transport.
func NewSyncer(store *db.DB, transport remote.Transport, opts Options) *Syncer {
	opts.Extensions = NormalizeExtensions(opts.Extensions)
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DryRun {
		logger = logger.With("dry_run", true)
	}
	return &Syncer{
		store:     store,
		transport: transport,
		opts:      opts,
		registry:  NewDuplicateRegistry(),
		report:    NewReport(),
		logger:    logger,
	}
}

// Run executes the full session: resume detection, remote scan, per-file
// transfers, post-processing, and finalization. Interruption is reported
// through the result status, not as an error.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	resumedFrom, err := s.prepareResume()
	if err != nil {
		return nil, err
	}

	// Files confirmed transferred by any earlier session on this (source,
	// destination) pair are never re-attempted, resumed or not, and their
	// hashes feed the duplicate index. Dry runs seed the same set so their
	// counts match a real run.
	prior, err := s.store.AllProcessedFilesForPath(s.opts.SourceRoot, s.opts.DestRoot, 0)
	if err != nil {
		return nil, err
	}
	s.registry.Seed(prior)

	syncID, err := s.store.StartSession(s.opts.SourceRoot, s.opts.DestRoot, resumedFrom)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("sync_id", syncID)
	if resumedFrom > 0 {
		logger.Info("resuming interrupted sync",
			"resumed_from", resumedFrom, "known_files", s.registry.ProcessedCount())
	}

	result := &Result{SyncID: syncID, ResumedFromID: resumedFrom, Report: s.report}

	if err := s.transport.Connect(); err != nil {
		s.finalize(syncID, start, models.StatusFailed, logger)
		result.Status = models.StatusFailed
		result.Duration = time.Since(start)
		return result, fmt.Errorf("remote connection failed: %w", err)
	}
	defer s.transport.Disconnect()

	if resumedFrom == 0 || s.opts.DryRun {
		err := ScanRemote(ctx, s.transport, s.registry, s.opts.DestRoot,
			s.opts.Extensions, logger, s.opts.DryRun, s.opts.Progress)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupt(result, syncID, start, logger), nil
			}
			// Scan failure degrades duplicate detection but does not
			// abort the run.
			logger.Error("remote scan failed", "error", err)
			s.report.AddError(fmt.Sprintf("remote scan: %v", err))
			s.logStoreError(syncID, fmt.Sprintf("remote scan: %v", err), "", logger)
		}
	} else {
		logger.Info("resume: skipping remote scan, trusting persisted hashes",
			"hashes", s.registry.RemoteCount())
	}

	files, err := LocalMediaFiles(s.opts.SourceRoot, s.opts.Extensions)
	if err != nil {
		s.report.AddError(err.Error())
		s.logStoreError(syncID, err.Error(), "", logger)
		s.finalize(syncID, start, models.StatusFailed, logger)
		result.Status = models.StatusFailed
		result.Duration = time.Since(start)
		return result, err
	}
	if len(files) == 0 {
		logger.Warn("no local media files found", "source", s.opts.SourceRoot)
		s.finalize(syncID, start, models.StatusNoFiles, logger)
		result.Status = models.StatusNoFiles
		result.Duration = time.Since(start)
		return result, nil
	}
	logger.Info("files to process", "count", len(files))

	pipeline := newPipeline(s.store, s.transport, s.registry, s.report, logger,
		s.opts.SourceRoot, s.opts.DestRoot, syncID, s.opts.DryRun)

	var bar *pb.ProgressBar
	if s.opts.Progress {
		bar = pb.StartNew(len(files))
	}
	interrupted := false
	for i, file := range files {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if _, err := pipeline.ProcessFile(ctx, file); err != nil {
			interrupted = true
			break
		}
		if bar != nil {
			bar.Increment()
		}
		if (i+1)%10 == 0 && !s.opts.DryRun {
			logger.Info("progress saved", "processed", i+1, "total", len(files))
		}
	}
	if bar != nil {
		bar.Finish()
	}
	if interrupted {
		return s.interrupt(result, syncID, start, logger), nil
	}

	if s.report.FilesTransferred > 0 || s.report.DuplicatesRenamed > 0 || s.opts.DryRun {
		if s.opts.PostProc != nil {
			if err := s.opts.PostProc.Run(s.opts.DestRoot, s.opts.DryRun); err != nil {
				logger.Warn("post-processing reported failures", "error", err)
			}
		}
	}

	status := models.StatusCompleted
	if len(s.report.Errors) > 0 {
		status = models.StatusCompletedWithErrors
	}
	if s.opts.DryRun {
		status = models.StatusDryRunCompleted
	}
	s.finalize(syncID, start, status, logger)
	result.Status = status
	result.Duration = time.Since(start)
	return result, nil
}

// prepareResume applies the resume policy: forced resume by id, forced new
// run, or interactive detection of an incomplete session on the same
// (source, destination) pair. Dry runs never resume. Returns the session id
// being resumed, or zero.
func (s *Syncer) prepareResume() (int64, error) {
	if s.opts.DryRun {
		return 0, nil
	}

	if s.opts.ResumeID > 0 {
		if err := s.loadResumeState(s.opts.ResumeID); err != nil {
			return 0, err
		}
		s.logger.Info("forced resume", "resume_id", s.opts.ResumeID)
		return s.opts.ResumeID, nil
	}

	incomplete, err := s.store.FindIncompleteSession(s.opts.SourceRoot, s.opts.DestRoot)
	if err != nil {
		return 0, err
	}
	if incomplete == 0 {
		return 0, nil
	}

	if s.opts.ForceNew {
		if err := s.store.MarkInterrupted(incomplete); err != nil {
			return 0, err
		}
		s.logger.Info("forcing new sync, prior session marked interrupted", "session", incomplete)
		return 0, nil
	}

	prompt := fmt.Sprintf("Found incomplete sync session (ID: %d). Resume it?", incomplete)
	if s.opts.Confirm == nil || !s.opts.Confirm(prompt) {
		if err := s.store.MarkInterrupted(incomplete); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err := s.loadResumeState(incomplete); err != nil {
		return 0, err
	}
	return incomplete, nil
}

// loadResumeState marks the resumed session's COMPLETED source paths so they
// are skipped without re-hashing. The pair-wide seeding in Run covers their
// hashes.
func (s *Syncer) loadResumeState(resumeID int64) error {
	own, err := s.store.ProcessedFiles([]int64{resumeID})
	if err != nil {
		return err
	}
	s.registry.MarkProcessed(own)
	return nil
}

func (s *Syncer) interrupt(result *Result, syncID int64, start time.Time, logger *slog.Logger) *Result {
	s.finalize(syncID, start, models.StatusInterrupted, logger)
	logger.Warn("sync interrupted, progress saved", "sync_id", syncID)
	result.Status = models.StatusInterrupted
	result.Duration = time.Since(start)
	return result
}

func (s *Syncer) finalize(syncID int64, start time.Time, status string, logger *slog.Logger) {
	err := s.store.UpdateSession(syncID, s.report.Counters(), time.Since(start).Seconds(), status)
	if err != nil {
		logger.Error("failed to finalize session", "status", status, "error", err)
	}
}

func (s *Syncer) logStoreError(syncID int64, msg, path string, logger *slog.Logger) {
	if err := s.store.LogError(syncID, msg, path); err != nil {
		logger.Warn("failed to record error", "error", err)
	}
}
