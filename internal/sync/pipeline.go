package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ncsync/internal/db"
	"ncsync/internal/hash"
	"ncsync/internal/remote"
	"ncsync/pkg/models"
)

// Outcome classifies the result of one per-file pipeline pass.
type Outcome int

const (
	OutcomeTransferred Outcome = iota
	OutcomeDuplicate
	OutcomeAlreadyProcessed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTransferred:
		return "transferred"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	default:
		return "failed"
	}
}

const pipelineMkdirTimeout = 2 * time.Minute

// Pipeline processes one candidate file at a time: already-processed checks,
// content hash, duplicate detection and renaming, remote directory creation,
// copy, and record keeping. In dry-run mode the identical decision logic
// runs, but every remote mutation is replaced by a no-op while records are
// still persisted with DRY_RUN status.
type Pipeline struct {
	store      *db.DB
	transport  remote.Transport
	registry   *DuplicateRegistry
	report     *Report
	logger     *slog.Logger
	sourceRoot string
	destRoot   string
	syncID     int64
	dryRun     bool
}

func newPipeline(store *db.DB, transport remote.Transport, registry *DuplicateRegistry, report *Report, logger *slog.Logger, sourceRoot, destRoot string, syncID int64, dryRun bool) *Pipeline {
	return &Pipeline{
		store:      store,
		transport:  transport,
		registry:   registry,
		report:     report,
		logger:     logger,
		sourceRoot: sourceRoot,
		destRoot:   destRoot,
		syncID:     syncID,
		dryRun:     dryRun,
	}
}

// ProcessFile runs the pipeline for one local file. Per-file failures are
// absorbed into the report and store; the returned error is non-nil only
// when the run was interrupted mid-file, after an INTERRUPTED record has
// been persisted for it.
func (p *Pipeline) ProcessFile(ctx context.Context, localPath string) (Outcome, error) {
	// Cheap path-only check first, before any I/O.
	if p.registry.AlreadyProcessed(localPath, "") {
		p.report.AddAlreadyProcessed()
		p.logger.Info("already processed, skipping", "file", localPath)
		return OutcomeAlreadyProcessed, nil
	}

	digest, err := hash.Local(localPath)
	if err != nil {
		p.fileError(localPath, fmt.Sprintf("hash computation failed: %v", err))
		return OutcomeFailed, nil
	}

	// Content check catches files that moved since a prior session.
	if p.registry.AlreadyProcessed(localPath, digest) {
		p.report.AddAlreadyProcessed()
		p.logger.Info("already processed (hash match), skipping", "file", localPath)
		return OutcomeAlreadyProcessed, nil
	}

	info, err := os.Stat(localPath)
	if err != nil {
		p.fileError(localPath, fmt.Sprintf("stat failed: %v", err))
		p.report.AddSkipped()
		return OutcomeFailed, nil
	}
	size := info.Size()

	destPath := p.destinationPath(localPath)

	isDuplicate := p.registry.IsDuplicate(digest)
	finalDest := destPath
	if isDuplicate {
		if canonical, ok := p.registry.CanonicalPath(digest); ok {
			p.logger.Info("duplicate content detected", "file", localPath, "canonical", canonical)
		}
		finalDest, err = p.duplicateName(destPath)
		if err != nil {
			p.fileError(localPath, fmt.Sprintf("duplicate name generation failed: %v", err))
			p.report.AddSkipped()
			return OutcomeFailed, nil
		}
		p.logger.Info("duplicate will be stored under a new name", "file", localPath, "dest", finalDest)
	}

	if p.dryRun {
		p.logger.Info("simulated transfer", "file", localPath, "dest", finalDest,
			"size", size, "hash", digest, "duplicate", isDuplicate)
	} else {
		if err := p.ensureRemoteDir(path.Dir(finalDest)); err != nil {
			p.fileError(localPath, fmt.Sprintf("create remote directory: %v", err))
			p.report.AddSkipped()
			return OutcomeFailed, nil
		}
		if err := p.transport.Copy(ctx, localPath, finalDest); err != nil {
			if ctx.Err() != nil {
				// Interrupted mid-file: leave an INTERRUPTED record so a
				// resumed run knows this file was attempted but unconfirmed.
				if lerr := p.store.LogTransfer(p.syncID, localPath, finalDest, digest, size, isDuplicate, models.TransferInterrupted); lerr != nil {
					p.logger.Warn("failed to record interrupted transfer", "file", localPath, "error", lerr)
				}
				return OutcomeFailed, ctx.Err()
			}
			p.fileError(localPath, fmt.Sprintf("transfer failed: %v", err))
			p.report.AddSkipped()
			return OutcomeFailed, nil
		}
	}

	p.registry.RegisterRemote(digest, finalDest)
	if isDuplicate {
		p.report.AddDuplicate()
		p.report.AddRenamedDuplicate()
	} else {
		p.report.AddTransferred(size)
	}

	status := models.TransferCompleted
	if p.dryRun {
		status = models.TransferDryRun
	}
	if err := p.store.LogTransfer(p.syncID, localPath, finalDest, digest, size, isDuplicate, status); err != nil {
		p.logger.Warn("failed to record transfer", "file", localPath, "error", err)
	}

	if isDuplicate {
		return OutcomeDuplicate, nil
	}
	p.logger.Info("transferred", "file", localPath, "dest", finalDest, "size", size)
	return OutcomeTransferred, nil
}

// destinationPath maps localPath's position under the source root onto the
// destination root, preserving the relative directory structure. Paths not
// under the source root fall back to their base name.
func (p *Pipeline) destinationPath(localPath string) string {
	rel, err := filepath.Rel(p.sourceRoot, localPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path.Join(p.destRoot, filepath.Base(localPath))
	}
	return path.Join(p.destRoot, filepath.ToSlash(rel))
}

// duplicateName derives a free disambiguated destination name by inserting
// _DUP (then _DUP2, _DUP3, ...) before the extension. Dry runs accept the
// first candidate without probing the remote side.
func (p *Pipeline) duplicateName(destPath string) (string, error) {
	dir := path.Dir(destPath)
	base := path.Base(destPath)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for counter := 1; ; counter++ {
		name := stem + "_DUP"
		if counter > 1 {
			name = fmt.Sprintf("%s_DUP%d", stem, counter)
		}
		candidate := path.Join(dir, name+ext)

		if p.dryRun {
			return candidate, nil
		}
		exists, err := p.transport.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (p *Pipeline) ensureRemoteDir(dir string) error {
	result, err := p.transport.Run(fmt.Sprintf("mkdir -p '%s'", dir), pipelineMkdirTimeout)
	if err != nil {
		return err
	}
	if result.ExitStatus != 0 {
		return fmt.Errorf("mkdir -p %s: %s", dir, strings.TrimSpace(result.Stderr))
	}
	return nil
}

func (p *Pipeline) fileError(localPath, msg string) {
	p.logger.Error(msg, "file", localPath)
	p.report.AddError(fmt.Sprintf("%s: %s", localPath, msg))
	if err := p.store.LogError(p.syncID, msg, localPath); err != nil {
		p.logger.Warn("failed to record error", "file", localPath, "error", err)
	}
}
