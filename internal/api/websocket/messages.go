package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeRegisterUpdate MessageType = "register_update"
	MessageTypeReload         MessageType = "reload"
	MessageTypeSystemStatus   MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// RegisterUpdateData carries a changed cache entry
type RegisterUpdateData struct {
	Register string `json:"register"`
	Payload  string `json:"payload"`
	Length   int    `json:"length"`
}

// ReloadData reports a table reload
type ReloadData struct {
	Table   string `json:"table"`
	File    string `json:"file"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewRegisterUpdateMessage(register, payload string, length int) Message {
	return NewMessage(MessageTypeRegisterUpdate, RegisterUpdateData{
		Register: register,
		Payload:  payload,
		Length:   length,
	})
}

func NewReloadMessage(table, file string, entries int, err error) Message {
	data := ReloadData{Table: table, File: file, Entries: entries}
	if err != nil {
		data.Error = err.Error()
	}
	return NewMessage(MessageTypeReload, data)
}
