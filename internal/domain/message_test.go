package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessage(t *testing.T) {
	valid := func() *Message {
		return &Message{
			ID:             "msg-1",
			InboundText:    "what is the minimum balance",
			IntentName:     "balance_requirement",
			IntentScore:    82,
			DeliveryStatus: DeliveryStatusPending,
			CreatedAt:      time.Now().UTC(),
		}
	}

	t.Run("valid message passes", func(t *testing.T) {
		assert.NoError(t, ValidateMessage(valid()))
	})

	t.Run("nil message fails", func(t *testing.T) {
		assert.Error(t, ValidateMessage(nil))
	})

	t.Run("missing inbound text fails", func(t *testing.T) {
		m := valid()
		m.InboundText = ""
		assert.Error(t, ValidateMessage(m))
	})

	t.Run("invalid delivery status fails", func(t *testing.T) {
		m := valid()
		m.DeliveryStatus = "bounced"
		assert.Error(t, ValidateMessage(m))
	})

	t.Run("intent score out of range fails", func(t *testing.T) {
		m := valid()
		m.IntentScore = 101
		assert.Error(t, ValidateMessage(m))
	})
}

func TestClassification_ScorePct(t *testing.T) {
	assert.Equal(t, 78, Classification{Confidence: 0.775}.ScorePct())
	assert.Equal(t, 0, Classification{Confidence: -0.2}.ScorePct())
	assert.Equal(t, 100, Classification{Confidence: 1.2}.ScorePct())
}
