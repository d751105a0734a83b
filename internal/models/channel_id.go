package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// ChannelID is a deterministic 128-bit identifier for a Channel.
//
// Unlike most entities, which use a time-ordered ULID assigned at creation,
// a Channel's ID must be stable across re-ingestion of the same upstream:
// the same (source_id, stream_url, channel_name) triple always produces the
// same ChannelID, so numbering and EPG associations survive a regeneration
// without being treated as new rows.
type ChannelID [16]byte

// NewChannelID derives a ChannelID from the ordered, NUL-separated inputs.
// Order matters: swapping two inputs produces a different ID.
func NewChannelID(sourceID ULID, streamURL, channelName string) ChannelID {
	h := sha256.New()
	h.Write([]byte(sourceID.String()))
	h.Write([]byte{0})
	h.Write([]byte(streamURL))
	h.Write([]byte{0})
	h.Write([]byte(channelName))
	sum := h.Sum(nil)
	var id ChannelID
	copy(id[:], sum[:16])
	return id
}

// String returns the hex representation of the ChannelID.
func (c ChannelID) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero returns true if the ChannelID has not been set.
func (c ChannelID) IsZero() bool {
	return c == ChannelID{}
}

// ParseChannelID parses a hex-encoded ChannelID string.
func ParseChannelID(s string) (ChannelID, error) {
	var id ChannelID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid channel id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid channel id length: got %d bytes, want %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

// Value implements driver.Valuer for database storage.
func (c ChannelID) Value() (driver.Value, error) {
	if c.IsZero() {
		return nil, nil
	}
	return c.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (c *ChannelID) Scan(value any) error {
	if value == nil {
		*c = ChannelID{}
		return nil
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			*c = ChannelID{}
			return nil
		}
		id, err := ParseChannelID(v)
		if err != nil {
			return fmt.Errorf("scanning channel id: %w", err)
		}
		*c = id
	case []byte:
		if len(v) == 0 {
			*c = ChannelID{}
			return nil
		}
		id, err := ParseChannelID(string(v))
		if err != nil {
			return fmt.Errorf("scanning channel id: %w", err)
		}
		*c = id
	default:
		return fmt.Errorf("unsupported type for ChannelID: %T", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c ChannelID) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ChannelID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ChannelID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid channel id JSON: %s", string(data))
	}
	s := string(data[1 : len(data)-1])
	if s == "" {
		*c = ChannelID{}
		return nil
	}
	id, err := ParseChannelID(s)
	if err != nil {
		return fmt.Errorf("parsing channel id JSON: %w", err)
	}
	*c = id
	return nil
}

// GormDataType returns the GORM data type for ChannelID.
func (ChannelID) GormDataType() string {
	return "varchar(32)"
}
