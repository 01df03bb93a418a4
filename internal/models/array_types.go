package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
// Returns JSON as string for compatibility with pgx simple protocol mode
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(bytes, j)
}

// ChannelList is a TEXT[] column of notification channels
type ChannelList []NotificationChannel

// Value implements the driver.Valuer interface
func (a ChannelList) Value() (driver.Value, error) {
	out := make([]string, len(a))
	for i, c := range a {
		out[i] = string(c)
	}
	return pq.Array(out).Value()
}

// Scan implements the sql.Scanner interface
func (a *ChannelList) Scan(src interface{}) error {
	if src == nil {
		*a = ChannelList{}
		return nil
	}
	var raw []string
	if err := pq.Array(&raw).Scan(src); err != nil {
		return err
	}
	list := make(ChannelList, len(raw))
	for i, s := range raw {
		list[i] = NotificationChannel(s)
	}
	*a = list
	return nil
}

// Contains reports whether the list holds the channel
func (a ChannelList) Contains(ch NotificationChannel) bool {
	for _, c := range a {
		if c == ch {
			return true
		}
	}
	return false
}

// UUIDArray converts ids into a value usable with "= ANY($n)"
func UUIDArray(ids []uuid.UUID) interface{} {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}
