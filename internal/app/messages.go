package app

import (
	"github.com/jwulff/speakify/internal/history"
	"github.com/jwulff/speakify/internal/recorder"
)

// RecorderEventMsg wraps an event from the recorder.
type RecorderEventMsg struct {
	Event recorder.Event
}

// RecorderErrorMsg is sent when a start or stop request fails.
type RecorderErrorMsg struct {
	Err error
}

// HistoryLoadedMsg carries the result of a history load.
type HistoryLoadedMsg struct {
	Records []history.Record
	Err     error
}

// RecordSavedMsg is sent when a new transcript has been persisted.
type RecordSavedMsg struct {
	Record history.Record
	Err    error
}

// RecordRemovedMsg is sent when a delete completes.
type RecordRemovedMsg struct {
	ID  int64
	Err error
}

// CopiedMsg is sent after a clipboard write.
type CopiedMsg struct {
	Err error
}

// ExportedMsg is sent after the transcript has been written to disk.
type ExportedMsg struct {
	Path string
	Err  error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// ClearNoticeMsg clears the notice line.
type ClearNoticeMsg struct{}
