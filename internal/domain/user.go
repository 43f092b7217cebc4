package domain

import "time"

// Credit costs gate pipeline admission and are debited only after the
// corresponding pipeline succeeds.
const (
	ImageGenerationCost = 5
	VideoGenerationCost = 10

	// SignupBonusCredits seeds newly registered accounts.
	SignupBonusCredits = 10
)

// User represents an authenticated account and its credit balance.
type User struct {
	UID       string
	Email     string
	Name      string
	Picture   string
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAfford reports whether the balance admits a generation of the given cost.
func (u User) CanAfford(cost int) bool {
	return u.Credits >= cost
}
