package amqp

import (
	"encoding/json"
	"time"
)

// RunCompletedMessage announces one finished pipeline run. It carries
// enough for consumers to act without reading the run ledger.
type RunCompletedMessage struct {
	SpreadsheetTitle   string    `json:"spreadsheet_title"`
	SpreadsheetID      string    `json:"spreadsheet_id"`
	WorksheetTitle     string    `json:"worksheet_title"`
	RowsAppended       int       `json:"rows_appended"`
	HeaderWritten      bool      `json:"header_written"`
	CreatedSpreadsheet bool      `json:"created_spreadsheet"`
	CreatedWorksheet   bool      `json:"created_worksheet"`
	Timestamp          time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m RunCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RunCompletedMessageFromJSON creates a message from JSON bytes
func RunCompletedMessageFromJSON(data []byte) (*RunCompletedMessage, error) {
	var msg RunCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
