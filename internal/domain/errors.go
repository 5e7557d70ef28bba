package domain

import "errors"

// Domain errors
var (
	ErrInvalidScore         = errors.New("invalid set score")
	ErrUndecidedMatch       = errors.New("match is undecided")
	ErrRatingDomainMismatch = errors.New("rating domain mismatch")
	ErrLobbyCapacity        = errors.New("lobby is full")
	ErrLobbyState           = errors.New("invalid lobby transition")
	ErrDuplicateRequest     = errors.New("player already requested or confirmed")
	ErrLobbyConflict        = errors.New("lobby was modified concurrently")
	ErrInvalidTeam          = errors.New("team needs two distinct players")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrLobbyNotFound        = errors.New("lobby not found")
	ErrMatchExists          = errors.New("match already submitted")
	ErrMatchNotFound        = errors.New("match not found")
	ErrPlayerExists         = errors.New("player already exists")
	ErrTeamExists           = errors.New("team already exists")
	ErrRatingConflict       = errors.New("ratings changed since the match was read")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// ErrNotHost is returned when someone other than the host accepts or rejects.
// It matches ErrLobbyState as well.
var ErrNotHost = &kindError{msg: "only the host can do that", parent: ErrLobbyState}

type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// ErrorKind is the explicit result kind callers branch on.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindInvalidScore     ErrorKind = "invalid_score"
	KindUndecidedMatch   ErrorKind = "undecided_match"
	KindDomainMismatch   ErrorKind = "rating_domain_mismatch"
	KindLobbyCapacity    ErrorKind = "lobby_capacity"
	KindNotHost          ErrorKind = "not_host"
	KindLobbyState       ErrorKind = "lobby_state"
	KindDuplicateRequest ErrorKind = "duplicate_request"
	KindConflict         ErrorKind = "conflict"
	KindInvalidRequest   ErrorKind = "invalid_request"
	KindNotFound         ErrorKind = "not_found"
	KindInternal         ErrorKind = "internal"
)

// KindOf classifies err. ErrNotHost is checked before ErrLobbyState since it wraps it.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidScore):
		return KindInvalidScore
	case errors.Is(err, ErrUndecidedMatch):
		return KindUndecidedMatch
	case errors.Is(err, ErrRatingDomainMismatch):
		return KindDomainMismatch
	case errors.Is(err, ErrLobbyCapacity):
		return KindLobbyCapacity
	case errors.Is(err, ErrNotHost):
		return KindNotHost
	case errors.Is(err, ErrLobbyState):
		return KindLobbyState
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicateRequest
	case errors.Is(err, ErrLobbyConflict), errors.Is(err, ErrMatchExists),
		errors.Is(err, ErrPlayerExists), errors.Is(err, ErrTeamExists),
		errors.Is(err, ErrRatingConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidTeam), errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case IsNotFoundError(err):
		return KindNotFound
	default:
		return KindInternal
	}
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrTeamNotFound) ||
		errors.Is(err, ErrLobbyNotFound) ||
		errors.Is(err, ErrMatchNotFound)
}
