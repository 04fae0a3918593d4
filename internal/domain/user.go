// Package domain contains entity without logic, just meta-data
package domain

import "time"

const (
	DefaultUsername = "Anonymous"
	DefaultEmoji    = "👤"
)

// Identity is the routing address of one live connection.
// It is supplied by the caller and never validated here.
type Identity string

// Presence is what the roster shows about a connected identity.
type Presence struct {
	ID          Identity  `json:"id"`
	Username    string    `json:"username"`
	Emoji       string    `json:"emoji"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewPresence avoids raw literals in adapters and keeps the defaults in one place.
func NewPresence(id Identity, now time.Time) Presence {
	return Presence{
		ID:          id,
		Username:    DefaultUsername,
		Emoji:       DefaultEmoji,
		ConnectedAt: now,
	}
}

// PresenceUpdate carries the optional fields of an update_info message.
// A nil field is left untouched.
type PresenceUpdate struct {
	Username *string `json:"username,omitempty"`
	Emoji    *string `json:"emoji,omitempty"`
}

// Apply mutates only the supplied, non-empty fields.
func (p *Presence) Apply(u PresenceUpdate) {
	if u.Username != nil && *u.Username != "" {
		p.Username = *u.Username
	}
	if u.Emoji != nil && *u.Emoji != "" {
		p.Emoji = *u.Emoji
	}
}
