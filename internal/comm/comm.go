package comm

import (
	"encoding/json"
)

// WSMessage is the envelope used on the websocket stream and on NATS.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "status", "log", "cards-indexed"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

type LogsResponse struct {
	Logs []string `json:"logs"`
}

type SearchResponse struct {
	Owners []string `json:"owners"`
}

// IndexedEvent describes one mutation that gave an owner new cards.
type IndexedEvent struct {
	OwnerID   string   `json:"owner_id"`
	OwnerName string   `json:"owner_name"`
	Channel   string   `json:"channel"`
	Cards     []string `json:"cards"`
}

type HealthData struct {
	InstanceId string `json:"instance_id"`
	Cards      int    `json:"cards"`
	Status     string `json:"status"`
}
