package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRevealed is returned by conditional reveal when the round
	// was revealed by a competing writer
	ErrAlreadyRevealed = errors.New("round already revealed")
	// ErrActiveRoundExists is returned when allocating a round while the
	// room still has an unrevealed one
	ErrActiveRoundExists = errors.New("room already has an active round")
	// ErrIdentifierExhausted is returned when room id generation keeps
	// colliding after the maximum number of attempts
	ErrIdentifierExhausted = errors.New("room identifier space exhausted")
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
