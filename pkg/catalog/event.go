package catalog

import "time"

type EventType string

const (
	EventBuildStarted   EventType = "build_started"
	EventArchiveIndexed EventType = "archive_indexed"
	EventArchiveSkipped EventType = "archive_skipped"
	EventBuildFinished  EventType = "build_finished"
	EventBuildFailed    EventType = "build_failed"
)

// Event reports build progress. Index is the 1-based position of Archive
// among the Total candidate archives.
type Event struct {
	Type    EventType `json:"type"`
	BuildID string    `json:"build_id"`
	Archive string    `json:"archive,omitempty"`
	Entries int       `json:"entries,omitempty"`
	Index   int       `json:"index,omitempty"`
	Total   int       `json:"total,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Terminal reports whether e ends a build.
func (e Event) Terminal() bool {
	return e.Type == EventBuildFinished || e.Type == EventBuildFailed
}
