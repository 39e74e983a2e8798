package sync

import "ncsync/pkg/models"

// Report accumulates the counters for a single run.
type Report struct {
	FilesTransferred     int64
	DuplicatesFound      int64
	DuplicatesRenamed    int64
	SkippedFiles         int64
	AlreadyProcessed     int64
	TotalSizeTransferred int64
	Errors               []string
}

func NewReport() *Report {
	return &Report{}
}

func (r *Report) AddTransferred(size int64) {
	r.FilesTransferred++
	r.TotalSizeTransferred += size
}

func (r *Report) AddDuplicate() {
	r.DuplicatesFound++
}

func (r *Report) AddRenamedDuplicate() {
	r.DuplicatesRenamed++
}

func (r *Report) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *Report) AddSkipped() {
	r.SkippedFiles++
}

func (r *Report) AddAlreadyProcessed() {
	r.AlreadyProcessed++
}

// Counters snapshots the report for persistence.
func (r *Report) Counters() models.Counters {
	return models.Counters{
		FilesTransferred:  r.FilesTransferred,
		DuplicatesFound:   r.DuplicatesFound,
		DuplicatesRenamed: r.DuplicatesRenamed,
		ErrorsCount:       int64(len(r.Errors)),
		SkippedFiles:      r.SkippedFiles,
		AlreadyProcessed:  r.AlreadyProcessed,
		TotalSizeBytes:    r.TotalSizeTransferred,
	}
}
