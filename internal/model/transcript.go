package model

import "time"

// TranscriptEvent is one committed exchange, published for archiving.
type TranscriptEvent struct {
	ThreadID  string
	User      string
	Assistant string
	Route     Node
	At        time.Time
	TraceID   string
}
