package auth

import (
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/config"
)

var Module = fx.Module("auth",
	fx.Provide(NewVerifierFx),
)

// NewVerifierFx creates the token verifier for fx
func NewVerifierFx(cfg *config.Config) *Verifier {
	return NewVerifier(cfg.JWT.Secret)
}
