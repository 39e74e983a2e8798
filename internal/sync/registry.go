package sync

import (
	"sync"

	"ncsync/pkg/models"
)

// DuplicateRegistry is the in-memory duplicate index for one run. It holds
// three things:
//
//   - remoteHashes: content hash -> canonical remote path, seeded by the
//     live destination scan (or from persisted records on resume) and kept
//     current after every successful transfer;
//   - processed: local source paths confirmed transferred by earlier
//     sessions, never to be re-attempted;
//   - processedHashes: content hashes of those prior transfers, so a file
//     that moved or was renamed between sessions is still skipped.
//
// The pipeline runs sequentially, but access is guarded so a parallel
// pipeline cannot race two identical-hash files into both claiming canonical
// status.
type DuplicateRegistry struct {
	mu              sync.Mutex
	remoteHashes    map[string]string
	processed       map[string]struct{}
	processedHashes map[string]struct{}
}

func NewDuplicateRegistry() *DuplicateRegistry {
	return &DuplicateRegistry{
		remoteHashes:    make(map[string]string),
		processed:       make(map[string]struct{}),
		processedHashes: make(map[string]struct{}),
	}
}

// MarkProcessed records local source paths that must not be re-transferred.
func (r *DuplicateRegistry) MarkProcessed(paths map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range paths {
		r.processed[p] = struct{}{}
	}
}

// Seed loads persisted (source, dest, hash) records from prior sessions:
// source paths and hashes into the already-processed sets, and hashes into
// the remote index so duplicate detection works without a live re-scan.
func (r *DuplicateRegistry) Seed(records []models.ProcessedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.processed[rec.SourceFile] = struct{}{}
		if rec.FileHash == "" {
			continue
		}
		r.processedHashes[rec.FileHash] = struct{}{}
		if _, ok := r.remoteHashes[rec.FileHash]; !ok {
			r.remoteHashes[rec.FileHash] = rec.DestFile
		}
	}
}

// AlreadyProcessed reports whether localPath was handled by an earlier
// session, by path or, when hash is non-empty, by content. The hash check
// catches files that moved between sessions; it deliberately does not
// consult the live remote index, which is the duplicate (rename) case.
func (r *DuplicateRegistry) AlreadyProcessed(localPath, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processed[localPath]; ok {
		return true
	}
	if hash != "" {
		if _, ok := r.processedHashes[hash]; ok {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether hash already has a canonical remote path.
func (r *DuplicateRegistry) IsDuplicate(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.remoteHashes[hash]
	return ok
}

// CanonicalPath returns the first-registered remote path for hash.
func (r *DuplicateRegistry) CanonicalPath(hash string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.remoteHashes[hash]
	return path, ok
}

// RegisterRemote records the remote path now holding hash. The first
// registration for a hash wins canonical status; later arrivals with the
// same content never displace it.
func (r *DuplicateRegistry) RegisterRemote(hash, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remoteHashes[hash]; !ok {
		r.remoteHashes[hash] = path
	}
}

// RemoteCount returns the number of indexed remote hashes.
func (r *DuplicateRegistry) RemoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.remoteHashes)
}

// ProcessedCount returns the size of the already-processed path set.
func (r *DuplicateRegistry) ProcessedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processed)
}
