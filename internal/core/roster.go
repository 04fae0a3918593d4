package core

import (
	"time"

	"github.com/dkeye/Share/internal/domain"
)

// PresenceDTO is a read-only view for APIs (no transport fields).
type PresenceDTO struct {
	ID          domain.Identity `json:"id"`
	Username    string          `json:"username"`
	Emoji       string          `json:"emoji"`
	ConnectedAt string          `json:"connected_at"`
}

func NewPresenceDTO(p domain.Presence) PresenceDTO {
	return PresenceDTO{
		ID:          p.ID,
		Username:    p.Username,
		Emoji:       p.Emoji,
		ConnectedAt: p.ConnectedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RosterDTO converts a registry snapshot for the wire.
func RosterDTO(snap []domain.Presence) []PresenceDTO {
	out := make([]PresenceDTO, 0, len(snap))
	for _, p := range snap {
		out = append(out, NewPresenceDTO(p))
	}
	return out
}
