package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the generic implementation all concrete events build on.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	TypeChatCompleted    = "CHAT_COMPLETED"
	TypeDocumentIngested = "DOCUMENT_INGESTED"
)

// NewChatCompletedEvent records one finished chat turn for downstream
// usage accounting.
func NewChatCompletedEvent(sessionID, userID, persona string, searchCount, chunkCount int, confidence float64, isMultimodal bool, durationMs int64) Event {
	return BaseEvent{
		Type: TypeChatCompleted,
		Data: map[string]interface{}{
			"session_id":    sessionID,
			"user_id":       userID,
			"persona":       persona,
			"search_count":  searchCount,
			"chunk_count":   chunkCount,
			"confidence":    confidence,
			"is_multimodal": isMultimodal,
			"duration_ms":   durationMs,
		},
		OccurredAt: time.Now(),
	}
}

// NewDocumentIngestedEvent records a document entering the corpus.
func NewDocumentIngestedEvent(documentID, filename, category string, chunkCount int) Event {
	return BaseEvent{
		Type: TypeDocumentIngested,
		Data: map[string]interface{}{
			"document_id": documentID,
			"filename":    filename,
			"category":    category,
			"chunk_count": chunkCount,
		},
		OccurredAt: time.Now(),
	}
}
