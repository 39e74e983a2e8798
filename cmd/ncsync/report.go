package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ncsync/internal/sync"
	"ncsync/pkg/models"
	"ncsync/pkg/utils"
)

const reportErrorLimit = 5

func printSyncReport(result *sync.Result, dryRun bool) {
	r := result.Report
	line := strings.Repeat("=", 60)

	fmt.Println("\n" + line)
	if dryRun {
		fmt.Println("DRY-RUN REPORT")
	} else {
		fmt.Println("SYNC REPORT")
	}
	fmt.Println(line)

	fmt.Printf("Status:   %s\n", result.Status)
	fmt.Printf("Duration: %s\n", utils.FormatDuration(result.Duration))
	if dryRun {
		fmt.Printf("Files that would be transferred: %d\n", r.FilesTransferred)
		fmt.Printf("Duplicates that would be found:  %d (%d renamed)\n", r.DuplicatesFound, r.DuplicatesRenamed)
		fmt.Printf("Already processed (skipped):     %d\n", r.AlreadyProcessed)
		fmt.Printf("Total size that would transfer:  %s\n", utils.FormatSize(r.TotalSizeTransferred))
	} else {
		fmt.Printf("Files transferred:   %d\n", r.FilesTransferred)
		fmt.Printf("Duplicates found:    %d (%d renamed)\n", r.DuplicatesFound, r.DuplicatesRenamed)
		fmt.Printf("Already processed:   %d\n", r.AlreadyProcessed)
		fmt.Printf("Skipped (errors):    %d\n", r.SkippedFiles)
		fmt.Printf("Total size:          %s\n", utils.FormatSize(r.TotalSizeTransferred))
	}
	fmt.Printf("Session ID: %d\n", result.SyncID)
	if result.ResumedFromID > 0 {
		fmt.Printf("Resumed from session: %d\n", result.ResumedFromID)
	}

	if len(r.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(r.Errors))
		start := 0
		if len(r.Errors) > reportErrorLimit {
			start = len(r.Errors) - reportErrorLimit
		}
		for _, e := range r.Errors[start:] {
			fmt.Printf("  - %s\n", e)
		}
		if len(r.Errors) > reportErrorLimit {
			fmt.Printf("  ... and %d more (see the sync database)\n", len(r.Errors)-reportErrorLimit)
		}
	}

	if dryRun {
		fmt.Println("\nDRY-RUN: no files were actually transferred.")
		fmt.Println("Run again without --dry-run to perform the transfer.")
	}
	fmt.Println(line)
}

func printRecentSessions(sessions []models.SyncSession) {
	if len(sessions) == 0 {
		fmt.Println("No sync sessions found in the database.")
		return
	}

	line := strings.Repeat("=", 80)
	fmt.Println(line)
	fmt.Println("RECENT SYNC SESSIONS")
	fmt.Println(line)

	for _, s := range sessions {
		fmt.Printf("\nID: %d | %s (%s) | Status: %s\n",
			s.ID, s.SyncDate.Format(time.DateTime), humanize.Time(s.SyncDate), s.Status)
		if s.ResumedFromID > 0 {
			fmt.Printf("Resumed from session: %d\n", s.ResumedFromID)
		}
		fmt.Printf("Path: %s -> %s\n", s.SourcePath, s.DestPath)
		fmt.Printf("Transferred: %d | Duplicates: %d (%d renamed) | Already processed: %d\n",
			s.FilesTransferred, s.DuplicatesFound, s.DuplicatesRenamed, s.AlreadyProcessed)
		fmt.Printf("Errors: %d | Skipped: %d\n", s.ErrorsCount, s.SkippedFiles)
		if s.TotalSizeBytes > 0 {
			fmt.Printf("Size: %s | Duration: %s\n",
				utils.FormatSize(s.TotalSizeBytes),
				utils.FormatDuration(time.Duration(s.DurationSeconds*float64(time.Second))))
		}
	}
	fmt.Println(line)
}

func printSessionDetail(d *models.SessionDetail) {
	s := d.Session
	line := strings.Repeat("=", 60)

	fmt.Println(line)
	fmt.Printf("SYNC SESSION %d\n", s.ID)
	fmt.Println(line)
	fmt.Printf("Date:        %s (%s)\n", s.SyncDate.Format(time.DateTime), humanize.Time(s.SyncDate))
	fmt.Printf("Status:      %s\n", s.Status)
	fmt.Printf("Source:      %s\n", s.SourcePath)
	fmt.Printf("Destination: %s\n", s.DestPath)
	if s.ResumedFromID > 0 {
		fmt.Printf("Resumed from session: %d\n", s.ResumedFromID)
	}

	fmt.Println("\nStatistics:")
	fmt.Printf("  Files transferred: %d\n", s.FilesTransferred)
	fmt.Printf("  Duplicates found:  %d (%d renamed)\n", s.DuplicatesFound, s.DuplicatesRenamed)
	fmt.Printf("  Already processed: %d\n", s.AlreadyProcessed)
	fmt.Printf("  Skipped:           %d\n", s.SkippedFiles)
	fmt.Printf("  Errors:            %d\n", s.ErrorsCount)
	fmt.Printf("  Completed records: %d (%s)\n", d.FileCount, utils.FormatSize(d.TotalBytes))
	if s.DurationSeconds > 0 {
		fmt.Printf("  Duration:          %s\n",
			utils.FormatDuration(time.Duration(s.DurationSeconds*float64(time.Second))))
	}

	if len(d.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(d.Errors))
		for _, e := range d.Errors {
			fmt.Printf("  [%s] %s\n", e.ErrorDate.Format(time.DateTime), e.Message)
			if e.FilePath != "" {
				fmt.Printf("    File: %s\n", e.FilePath)
			}
		}
	}
	fmt.Println(line)
}
