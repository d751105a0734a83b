package models

import (
	"gorm.io/gorm"
)

// ManualStreamChannel is a user-defined channel attached to a Manual stream
// source. Manual sources have no upstream playlist to fetch; ingestion
// instead materializes each enabled row here into the main Channel table
// via ToChannel.
type ManualStreamChannel struct {
	BaseModel

	// SourceID is the Manual stream source this channel belongs to.
	SourceID ULID `gorm:"not null;index" json:"source_id"`

	// TvgID is the EPG channel identifier for matching with program data.
	TvgID string `gorm:"size:255;index" json:"tvg_id,omitempty"`

	// TvgName is the display name.
	TvgName string `gorm:"size:512" json:"tvg_name,omitempty"`

	// TvgLogo is the URL to the channel logo.
	TvgLogo string `gorm:"size:2048" json:"tvg_logo,omitempty"`

	// TvgChno is the channel number if specified.
	TvgChno int `gorm:"default:0" json:"tvg_chno,omitempty"`

	// GroupTitle is the category/group.
	GroupTitle string `gorm:"size:255;index" json:"group_title,omitempty"`

	// ChannelName is the display name.
	ChannelName string `gorm:"not null;size:512" json:"channel_name"`

	// StreamURL is the actual stream URL.
	StreamURL string `gorm:"not null;size:4096" json:"stream_url"`

	// Enabled indicates whether this channel should be materialized.
	Enabled bool `gorm:"default:true" json:"enabled"`

	// Priority for ordering among manual channels.
	Priority int `gorm:"default:0" json:"priority"`

	// Extra stores additional attributes as JSON, carried through to the
	// materialized Channel's Extra field.
	Extra string `gorm:"type:text" json:"extra,omitempty"`
}

// TableName returns the table name for ManualStreamChannel.
func (ManualStreamChannel) TableName() string {
	return "manual_stream_channels"
}

// Validate performs basic validation on the manual channel.
func (c *ManualStreamChannel) Validate() error {
	if c.ChannelName == "" {
		return ErrNameRequired
	}
	if c.StreamURL == "" {
		return ErrStreamURLRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the channel and generates a ULID.
func (c *ManualStreamChannel) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return c.Validate()
}

// BeforeUpdate is a GORM hook that validates the channel before update.
func (c *ManualStreamChannel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}

// ToChannel converts a ManualStreamChannel to a Channel for materialization.
// The channel's deterministic ID is derived the same way ingested channels
// are (see Channel.AssignID), so re-materializing the same manual row is
// idempotent.
func (c *ManualStreamChannel) ToChannel() *Channel {
	channel := &Channel{
		SourceID:    c.SourceID,
		TvgID:       c.TvgID,
		TvgName:     c.TvgName,
		TvgLogo:     c.TvgLogo,
		TvgChno:     c.TvgChno,
		GroupTitle:  c.GroupTitle,
		ChannelName: c.ChannelName,
		StreamURL:   c.StreamURL,
		Extra:       c.Extra,
	}
	channel.AssignID()
	return channel
}
