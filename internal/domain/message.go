package domain

import (
	"fmt"
	"time"
)

// DeliveryStatus represents the outbound delivery state of a message.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// RetrievalHit is one entry of a message's retrieval trace: the chunk
// that grounded the answer and its distance from the query vector.
type RetrievalHit struct {
	ChunkID  string  `json:"chunk_id"`
	Distance float64 `json:"distance"`
}

// Message is the audit record for one inbound conversation turn. It is
// created once per turn and mutated only to attach the delivery outcome.
type Message struct {
	ID              string
	CorrespondentID string // empty when correspondent resolution failed
	InboundText     string
	AnswerText      *string // nil when generation was skipped or failed
	IntentName      string
	IntentScore     int // 0-100
	RetrievalTrace  []RetrievalHit
	DeliveryStatus  DeliveryStatus
	DeliveryMeta    map[string]any
	CreatedAt       time.Time
}

// ValidateMessage validates a Message instance
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	if m.InboundText == "" {
		return fmt.Errorf("message InboundText is required")
	}

	if !isValidDeliveryStatus(m.DeliveryStatus) {
		return fmt.Errorf("message DeliveryStatus is invalid: %s", m.DeliveryStatus)
	}

	if m.IntentScore < 0 || m.IntentScore > 100 {
		return fmt.Errorf("message IntentScore out of range: %d", m.IntentScore)
	}

	return nil
}

// isValidDeliveryStatus checks if a DeliveryStatus is valid
func isValidDeliveryStatus(s DeliveryStatus) bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusFailed:
		return true
	}
	return false
}
