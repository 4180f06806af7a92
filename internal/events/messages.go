package events

import (
	"encoding/json"
	"time"
)

const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
)

// ExpenseMessage is the audit record published when an expense changes.
// Amount travels as a decimal string, matching the transport format used
// everywhere else.
type ExpenseMessage struct {
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	ExpenseID string    `json:"expense_id"`
	Amount    string    `json:"amount,omitempty"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseCreated(userID, expenseID, amount, category string) *ExpenseMessage {
	return &ExpenseMessage{
		Action:    ActionCreated,
		UserID:    userID,
		ExpenseID: expenseID,
		Amount:    amount,
		Category:  category,
		Timestamp: time.Now(),
	}
}

func NewExpenseDeleted(userID, expenseID string) *ExpenseMessage {
	return &ExpenseMessage{
		Action:    ActionDeleted,
		UserID:    userID,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseMessageFromJSON(data []byte) (*ExpenseMessage, error) {
	var msg ExpenseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
