// Package ingestion defines the record-change notification accepted over
// HTTP and carried over Kafka to the indexer.
package ingestion

import "time"

// Reasons a record may be reported as changed.
const (
	ReasonCreated       = "created"
	ReasonUpdated       = "updated"
	ReasonDeleted       = "deleted"
	ReasonStatusChanged = "status_changed"
	ReasonFieldChanged  = "field_changed"
)

// ChangeRequest is the JSON body of POST /api/v1/records/changed.
type ChangeRequest struct {
	RecordIDs []int64 `json:"record_ids"`
	Reason    string  `json:"reason,omitempty"`
}

// ChangeResponse acknowledges an accepted notification.
type ChangeResponse struct {
	EventID  string `json:"event_id"`
	Accepted int    `json:"accepted"`
	Status   string `json:"status"`
}

// ChangeEvent is the Kafka payload consumed by the indexer.
type ChangeEvent struct {
	EventID    string    `json:"event_id"`
	RecordIDs  []int64   `json:"record_ids"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
