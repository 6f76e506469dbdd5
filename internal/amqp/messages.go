package amqp

import (
	"encoding/json"
	"time"
)

const (
	// OperationSync asks the worker to (re)mirror the load's current row.
	OperationSync = "sync"
	// OperationDelete asks the worker to remove the load's mirrored row.
	OperationDelete = "delete"
)

// LoadSyncMessage tells the worker one load changed. It carries only
// identifiers; the worker fetches the current row from the database so
// a reordered or delayed message can never apply stale values.
type LoadSyncMessage struct {
	UserID    string    `json:"user_id"`
	LoadID    int64     `json:"load_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLoadSyncMessage(userID string, loadID int64, operation string) *LoadSyncMessage {
	return &LoadSyncMessage{
		UserID:    userID,
		LoadID:    loadID,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

func (m *LoadSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LoadSyncMessageFromJSON(data []byte) (*LoadSyncMessage, error) {
	var msg LoadSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
