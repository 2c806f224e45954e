package ui

import "github.com/garana/filededup/internal/event"

// Event is a progress event from the engine.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted    = event.ScanStarted
	ScanComplete   = event.ScanComplete
	StageStarted   = event.StageStarted
	StageCompleted = event.StageCompleted
	FileFailed     = event.FileFailed
	FileSkipped    = event.FileSkipped
	MergeCompleted = event.MergeCompleted
	MergeSkipped   = event.MergeSkipped
	MergeFailed    = event.MergeFailed
	VerifyStarted  = event.VerifyStarted
	VerifyOK       = event.VerifyOK
	VerifyFailed   = event.VerifyFailed
)
