package models

import (
	"encoding/json"
	"time"
)

// DefaultDataType is used when a sync request does not name a data type.
const DefaultDataType = "notes"

// UserData is a per-license, per-type content blob. Writes are
// last-write-wins; there is exactly one row per (license key, data type).
type UserData struct {
	LicenseKey string
	DataType   string
	Content    json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
