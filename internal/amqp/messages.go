package amqp

import (
	"encoding/json"
	"time"

	"finboard/internal/core"
)

// Message types, carried in the AMQP Type property.
const (
	TypePreferenceBatch   = "preference_batch"
	TypeStatementImported = "statement_imported"
)

// PreferenceBatchMessage carries coalesced category preferences to persist.
type PreferenceBatchMessage struct {
	Entries   []core.CategoryPreference `json:"entries"`
	Timestamp time.Time                 `json:"timestamp"`
}

func NewPreferenceBatchMessage(entries []core.CategoryPreference) *PreferenceBatchMessage {
	return &PreferenceBatchMessage{Entries: entries, Timestamp: time.Now()}
}

// StatementImportedMessage announces a finished statement import.
type StatementImportedMessage struct {
	Statement           core.StatementMeta `json:"statement"`
	Inserted            int                `json:"inserted"`
	SkippedInvalidDates int                `json:"skippedInvalidDates"`
	Timestamp           time.Time          `json:"timestamp"`
}

func NewStatementImportedMessage(meta core.StatementMeta, res core.ImportResult) *StatementImportedMessage {
	return &StatementImportedMessage{
		Statement:           meta,
		Inserted:            res.Inserted,
		SkippedInvalidDates: res.SkippedInvalidDates,
		Timestamp:           time.Now(),
	}
}

func decode[T any](data []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PreferenceBatchMessageFromJSON decodes a preference batch body.
func PreferenceBatchMessageFromJSON(data []byte) (*PreferenceBatchMessage, error) {
	return decode[PreferenceBatchMessage](data)
}

// StatementImportedMessageFromJSON decodes a statement import body.
func StatementImportedMessageFromJSON(data []byte) (*StatementImportedMessage, error) {
	return decode[StatementImportedMessage](data)
}
