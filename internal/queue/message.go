package queue

import "encoding/json"

// Message kinds.
const (
	KindBackfill = "backfill"
	KindCity     = "city"
)

// Message asks a worker to schedule enrichment: a full backfill, or one city.
type Message struct {
	Kind       string `json:"kind"`
	CityID     string `json:"cityId,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
