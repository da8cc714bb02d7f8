// Package events defines the usage event stream the service publishes to
// Kafka: one event per stored paragraph, search, and rebuild. The stream is
// observational only; nothing in the serving path depends on it.
package events

import "time"

type EventType string

const (
	EventParagraphStored EventType = "paragraph_stored"
	EventSearch          EventType = "search"
	EventRebuild         EventType = "rebuild"
)

// Envelope carries just enough to aggregate events by type.
type Envelope struct {
	Type EventType `json:"type"`
}

type ParagraphStoredEvent struct {
	Type        EventType `json:"type"`
	ParagraphID int64     `json:"paragraph_id"`
	Words       int       `json:"words"`
	SizeBytes   int       `json:"size_bytes"`
	Indexed     bool      `json:"indexed"`
	Timestamp   time.Time `json:"timestamp"`
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Words     []string  `json:"words"`
	Operator  string    `json:"operator"`
	Path      string    `json:"path"`
	Hits      int       `json:"hits"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type RebuildEvent struct {
	Type       EventType `json:"type"`
	Paragraphs int64     `json:"paragraphs"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
