package errors

import "errors"

var (
	ErrInvalidVote         = errors.New("invalid vote")
	ErrInvalidEntityInput  = errors.New("invalid entity input")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrVoterNotFound       = errors.New("voter not found")
	ErrSelfVoteForbidden   = errors.New("self voting is forbidden")
	ErrTransactionConflict = errors.New("entity is busy, retry the vote")
	ErrEntityConflict      = errors.New("entity already registered with different data")
	ErrEventConflict       = errors.New("event id reused with a different payload")
	ErrOutboxNotFound      = errors.New("outbox message not found")
)
