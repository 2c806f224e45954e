package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	StageStarted
	StageCompleted
	FileFailed
	FileSkipped
	MergeCompleted
	MergeSkipped
	MergeFailed
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ScanStarted:    "ScanStarted",
	ScanComplete:   "ScanComplete",
	StageStarted:   "StageStarted",
	StageCompleted: "StageCompleted",
	FileFailed:     "FileFailed",
	FileSkipped:    "FileSkipped",
	MergeCompleted: "MergeCompleted",
	MergeSkipped:   "MergeSkipped",
	MergeFailed:    "MergeFailed",
	VerifyStarted:  "VerifyStarted",
	VerifyOK:       "VerifyOK",
	VerifyFailed:   "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // file or candidate path
	Base      string // merge base (Merge* events)
	Size      int64  // file size, or bytes saved for MergeCompleted
	Stage     int    // Stage* events
	Total     int64  // input files (ScanComplete, StageStarted)
	TotalSize int64  // input bytes (ScanComplete)
	Clusters  int    // surviving clusters (StageCompleted)
	Error     error
}
