package domain

// Tier is fixed when an account is first referenced.
type Tier int

const (
	Unrestricted Tier = iota
	Restricted
)

func (t Tier) String() string {
	if t == Restricted {
		return "restricted"
	}
	return "unrestricted"
}

// Account is the cumulative byte counter attributed to one identity.
type Account struct {
	ID    Identity `json:"id"`
	Total int64    `json:"total_data_shared"`
	Tier  Tier     `json:"tier"`
}
