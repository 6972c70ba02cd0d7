package access

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

var Module = fx.Module("access",
	fx.Provide(
		NewResolverFx,
		NewGate,
	),
)

// NewResolverFx creates the resolver for fx. Until the org service is wired
// in, membership denies by default: org-restricted rooms stay closed rather
// than open.
func NewResolverFx() *Resolver {
	return NewResolver(denyAllOrgs{})
}

type denyAllOrgs struct{}

func (denyAllOrgs) IsMember(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return false, nil
}
