package storage

import (
	"time"
)

type TelemetryFrame struct {
	ID          int64     `json:"id"`
	ReceivedAt  time.Time `json:"received_at"`
	Topic       string    `json:"topic"`
	RawRegister string    `json:"raw_register"`
	Register    int       `json:"register"`
	Line        string    `json:"line"`
	Stored      []byte    `json:"stored,omitempty"`
	Accepted    bool      `json:"accepted"`
}

type TableReload struct {
	ID        int64     `json:"id"`
	LoadedAt  time.Time `json:"loaded_at"`
	TableName string    `json:"table_name"`
	FilePath  string    `json:"file_path"`
	Entries   int       `json:"entries"`
	Success   bool      `json:"success"`
	Error     *string   `json:"error,omitempty"`
}
