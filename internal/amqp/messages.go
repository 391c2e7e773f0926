package amqp

import (
	"encoding/json"
	"time"

	"saldo/internal/core"
)

// TransactionRecordedMessage tells the worker a transaction committed and
// should be appended to the user's statement sheet. It carries only the ID
// and owner; the worker fetches the full row from the database.
type TransactionRecordedMessage struct {
	ID        int64       `json:"id"`
	UserID    core.UserID `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// BalanceDriftMessage signals that a transaction insert committed but the
// account balance update did not. The worker recomputes the cached balance
// from transaction history.
type BalanceDriftMessage struct {
	AccountID int64       `json:"account_id"`
	UserID    core.UserID `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewTransactionRecordedMessage(id int64, userID core.UserID) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		ID:        id,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func NewBalanceDriftMessage(accountID int64, userID core.UserID) *BalanceDriftMessage {
	return &BalanceDriftMessage{
		AccountID: accountID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *BalanceDriftMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BalanceDriftMessageFromJSON(data []byte) (*BalanceDriftMessage, error) {
	var msg BalanceDriftMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
