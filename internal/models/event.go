package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventJoined = "joined"
	EventLeft   = "left"
)

// ReferralEvent is one entry in a referrer's per-channel history log.
type ReferralEvent struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// EventList is stored as a JSON array in both backends.
type EventList []ReferralEvent

func (l EventList) Value() (driver.Value, error) {
	if l == nil {
		l = EventList{}
	}
	return json.Marshal(l)
}

func (l *EventList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into EventList", value)
	}
}
