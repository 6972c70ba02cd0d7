package hub

import (
	"github.com/teacurran/planning-poker/internal/models"
)

// roleMayReceive gates fan-out per role. Every current event type is visible
// to hosts, voters and observers alike (vote.recorded already withholds the
// card value pre-reveal), so the gate only rejects connections that have no
// role yet, i.e. attached but not joined - which cannot happen, as attach
// follows join.
func roleMayReceive(role models.Role, _ string) bool {
	switch role {
	case models.RoleHost, models.RoleVoter, models.RoleObserver:
		return true
	default:
		return false
	}
}
