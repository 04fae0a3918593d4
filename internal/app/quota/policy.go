package quota

import (
	"strings"

	"github.com/dkeye/Share/internal/domain"
)

// DefaultGuestLimit is 2 GiB.
const DefaultGuestLimit int64 = 2 << 30

// StaticPolicy restricts identities carrying the guest prefix.
// An empty prefix restricts nobody.
type StaticPolicy struct {
	Ceiling     int64
	GuestPrefix string
}

func (p StaticPolicy) IsRestricted(id domain.Identity) bool {
	return p.GuestPrefix != "" && strings.HasPrefix(string(id), p.GuestPrefix)
}

func (p StaticPolicy) CeilingBytes() int64 { return p.Ceiling }
