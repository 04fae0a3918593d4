package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresenceApply(t *testing.T) {
	t.Parallel()

	name, empty, emoji := "Alice", "", "🧪"
	cases := []struct {
		name         string
		update       PresenceUpdate
		wantUsername string
		wantEmoji    string
	}{
		{"nothing", PresenceUpdate{}, DefaultUsername, DefaultEmoji},
		{"username only", PresenceUpdate{Username: &name}, "Alice", DefaultEmoji},
		{"both", PresenceUpdate{Username: &name, Emoji: &emoji}, "Alice", "🧪"},
		{"empty ignored", PresenceUpdate{Username: &empty, Emoji: &empty}, DefaultUsername, DefaultEmoji},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := NewPresence("u1", time.Unix(0, 0))
			p.Apply(tc.update)
			assert.Equal(t, tc.wantUsername, p.Username)
			assert.Equal(t, tc.wantEmoji, p.Emoji)
			assert.Equal(t, Identity("u1"), p.ID)
		})
	}
}
