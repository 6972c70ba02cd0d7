// Package access holds the join-permission resolver and the tier feature
// gate. Both are pure policy; org membership lookups are delegated to a
// collaborator interface implemented outside the core.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/models"
)

var (
	// ErrJoinDenied is returned when the room's privacy mode excludes the
	// identity.
	ErrJoinDenied = errors.New("join not permitted for this room")
	// ErrExportDenied is returned when the identity's tier does not include
	// report exports.
	ErrExportDenied = errors.New("export not available on this tier")
)

// OrgMembership answers whether a user belongs to an organization. The
// implementation lives with the CRUD/billing services; the core only
// consumes it.
type OrgMembership interface {
	IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// Resolver decides join permission for (identity, room).
type Resolver struct {
	orgs OrgMembership
}

// NewResolver creates a permissions resolver.
func NewResolver(orgs OrgMembership) *Resolver {
	return &Resolver{orgs: orgs}
}

// CanJoin applies the room's privacy mode:
//   - public: anyone, anonymous included when the room allows it
//   - invite-only: any authenticated identity holding the room link; the
//     link itself is the invite (ids are unguessable enough at 6 chars only
//     when shared deliberately), anonymous access still gated by config
//   - org-restricted: same-org membership required, never anonymous
func (r *Resolver) CanJoin(ctx context.Context, identity *auth.Identity, room *models.Room) error {
	if identity.Anonymous() && !room.Config.AllowAnonymous {
		return ErrJoinDenied
	}

	switch room.Privacy {
	case models.PrivacyPublic, models.PrivacyInviteOnly:
		return nil
	case models.PrivacyOrgRestricted:
		if identity.Anonymous() || room.OrgID == nil {
			return ErrJoinDenied
		}
		ok, err := r.orgs.IsMember(ctx, *identity.UserID, *room.OrgID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrJoinDenied
		}
		return nil
	default:
		return ErrJoinDenied
	}
}

// Gate maps tiers to gated features.
type Gate struct{}

// NewGate creates a feature gate.
func NewGate() *Gate {
	return &Gate{}
}

// MayExport reports whether the tier includes CSV/PDF exports.
func (g *Gate) MayExport(tier models.Tier) bool {
	return tier == models.TierPro || tier == models.TierTeam
}

// MayRequestDetailedReport reports whether the tier includes per-participant
// breakdowns in exports.
func (g *Gate) MayRequestDetailedReport(tier models.Tier) bool {
	return tier == models.TierTeam || tier == models.TierPro
}
