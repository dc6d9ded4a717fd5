package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budgetbee/internal/core"
)

// TransactionChangedMessage announces a committed ledger mutation. It is
// published only after the database transaction committed.
type TransactionChangedMessage struct {
	ID            string    `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	CategoryID    string    `json:"category_id"`
	Type          string    `json:"type"`
	Action        string    `json:"action"`
	AmountCents   int64     `json:"amount_cents"`
	Month         int       `json:"month"`
	Year          int       `json:"year"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionChangedMessage describes action applied to t.
func NewTransactionChangedMessage(t core.Transaction, action core.Action) *TransactionChangedMessage {
	p := t.Period()
	return &TransactionChangedMessage{
		ID:            uuid.NewString(),
		TransactionID: t.ID,
		CategoryID:    string(t.CategoryID),
		Type:          string(t.Type),
		Action:        string(action),
		AmountCents:   t.Amount.Cents,
		Month:         p.Month,
		Year:          p.Year,
		Timestamp:     time.Now().UTC(),
	}
}

// Period is the month the mutated transaction is booked in.
func (m *TransactionChangedMessage) Period() core.Period {
	return core.Period{Month: m.Month, Year: m.Year}
}

// Validate checks the fields a consumer relies on.
func (m *TransactionChangedMessage) Validate() error {
	if _, err := core.ParseCategoryID(m.CategoryID); err != nil {
		return fmt.Errorf("category_id: %w", err)
	}
	if _, err := core.ParseTransactionType(m.Type); err != nil {
		return fmt.Errorf("type: %w", err)
	}
	if _, err := core.ParseAction(m.Action); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if m.AmountCents < 0 {
		return fmt.Errorf("amount_cents: %w", core.ErrInvalidAmount)
	}
	return nil
}

func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
