package voting

import (
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
)

var Module = fx.Module("voting",
	fx.Provide(NewServiceFx),
)

// NewServiceFx creates the domain service for fx, binding the postgres
// repositories to the service's repository views.
func NewServiceFx(
	rooms *postgres.RoomRepository,
	participants *postgres.ParticipantRepository,
	rounds *postgres.RoundRepository,
	votes *postgres.VoteRepository,
	sessions *postgres.SessionHistoryRepository,
	resolver *access.Resolver,
	b bus.Bus,
) *Service {
	return NewService(rooms, participants, rounds, votes, sessions, resolver, b)
}
