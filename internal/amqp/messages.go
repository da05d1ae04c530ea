package amqp

import (
	"encoding/json"
	"time"
)

// ImportAppliedMessage announces that a staged import batch was applied.
// It carries only counts and identifiers; consumers that need row data
// query the database.
type ImportAppliedMessage struct {
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"` // "budget" or "transaction"
	BatchID   string    `json:"batch_id"`
	Action    string    `json:"action"` // "keep" or "replace"
	Inserted  int       `json:"inserted"`
	Deleted   int       `json:"deleted"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *ImportAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportAppliedMessageFromJSON creates a message from JSON bytes
func ImportAppliedMessageFromJSON(data []byte) (*ImportAppliedMessage, error) {
	var msg ImportAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
