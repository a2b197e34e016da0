package models

import (
	"encoding/json"
	"time"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one row-level change pushed over the realtime feed.
// Record carries the new row (or the deleted row's last state) as the
// backend serialized it.
type ChangeEvent struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Type       ChangeType      `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	Record     json.RawMessage `json:"record"`
	CommitTime time.Time       `json:"commit_time"`
}

// SubscribeFrame is the control message a realtime client sends after
// connecting. Filter narrows the feed to one project; empty means all
// rows the session may see.
type SubscribeFrame struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

func ParseSubscribeFrame(data []byte) (SubscribeFrame, bool) {
	var frame SubscribeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return SubscribeFrame{}, false
	}
	if frame.Action != "subscribe" && frame.Action != "unsubscribe" {
		return SubscribeFrame{}, false
	}
	return frame, true
}
