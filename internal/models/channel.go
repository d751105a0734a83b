package models

import (
	"time"

	"gorm.io/gorm"
)

// Channel represents an individual channel parsed from a stream source.
//
// Channel.ID is deterministic (see ChannelID), not a creation-time ULID:
// re-ingesting the same upstream yields the same channel rows, so numbering
// assignments and EPG associations computed by the pipeline stay stable
// across regenerations (spec invariant I-1).
type Channel struct {
	ID ChannelID `gorm:"primarykey;type:varchar(32)" json:"id"`

	// SourceID is the foreign key to the parent StreamSource.
	SourceID ULID `gorm:"type:varchar(26);not null;index" json:"source_id"`

	// TvgID is the EPG channel identifier for matching with program data.
	TvgID string `gorm:"size:255;index" json:"tvg_id,omitempty"`

	// TvgName is the display name from the M3U tvg-name attribute.
	TvgName string `gorm:"size:512" json:"tvg_name,omitempty"`

	// TvgLogo is the URL to the channel logo. Rewritten in place by the
	// logo-caching stage to point at the local cache when available.
	TvgLogo string `gorm:"size:2048" json:"tvg_logo,omitempty"`

	// TvgChno is the channel number. Populated by the numbering stage;
	// a nonzero value carried from the upstream is honored where unique.
	TvgChno int `gorm:"default:0" json:"tvg_chno,omitempty"`

	// GroupTitle is the category/group from the M3U group-title attribute.
	GroupTitle string `gorm:"size:255;index" json:"group_title,omitempty"`

	// ChannelName is the display name (from EXTINF title or computed).
	ChannelName string `gorm:"not null;size:512" json:"channel_name"`

	// StreamURL is the actual upstream stream URL.
	StreamURL string `gorm:"not null;size:4096" json:"stream_url"`

	// Extra stores additional EXTINF attributes as a JSON blob, preserved
	// so data-mapping rules can SET arbitrary fields without a schema change.
	Extra string `gorm:"type:text" json:"extra,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// TableName returns the table name for Channel.
func (Channel) TableName() string {
	return "channels"
}

// Validate performs basic validation on the channel.
func (c *Channel) Validate() error {
	if c.SourceID.IsZero() {
		return ErrSourceIDRequired
	}
	if c.ChannelName == "" {
		return ErrNameRequired
	}
	if c.StreamURL == "" {
		return ErrStreamURLRequired
	}
	return nil
}

// AssignID (re)computes the deterministic ChannelID from the channel's
// current source_id, stream_url, and channel_name. Idempotent: the same
// triple always yields the same ID, which is the point.
func (c *Channel) AssignID() {
	c.ID = NewChannelID(c.SourceID, c.StreamURL, c.ChannelName)
}

// BeforeCreate is a GORM hook that validates the channel and derives its ID.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID.IsZero() {
		c.AssignID()
	}
	return nil
}

// BeforeUpdate is a GORM hook that validates the channel before update.
func (c *Channel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}
