package ui

import (
	"fmt"

	"github.com/garana/filededup/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: done ✓  files 48,917  groups 312  merged 1,204  saved 2.1 GiB  time 3m 17s  errors 0
func completionSummary(snap stats.Snapshot) string {
	icon := "✓"
	errs := snap.FilesFailed + snap.MergesFailed + snap.FilesVerifyFailed
	if snap.MergesFailed > 0 || snap.FilesVerifyFailed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  files %s  groups %s  merged %s  saved %s  time %s",
		icon,
		FormatCount(snap.FilesScanned),
		FormatCount(snap.Clusters),
		FormatCount(snap.FilesMerged),
		FormatBytes(snap.BytesSaved),
		FormatDuration(snap.Elapsed),
	)

	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.FilesVerified))
	}

	base += fmt.Sprintf("  errors %d", errs)
	return base
}
