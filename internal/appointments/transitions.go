package appointments

import (
	"errors"
	"fmt"
)

// Actor identifies who is asking for a status change.
type Actor string

const (
	ActorPatient  Actor = "patient"
	ActorProvider Actor = "provider"
)

var (
	// ErrInvalidTransition matches every *TransitionError.
	ErrInvalidTransition = errors.New("invalid_transition")

	// ErrActorNotPermitted is returned when a legal transition is requested by the wrong party.
	ErrActorNotPermitted = errors.New("actor not permitted for transition")
)

// TransitionError names the current and requested state of a rejected transition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: %s -> %s", e.From, e.To)
}

// Is lets callers match with errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var (
	bothParties  = []Actor{ActorPatient, ActorProvider}
	providerOnly = []Actor{ActorProvider}
)

// transitions lists every legal edge and who may take it. Nothing leaves a terminal state.
var transitions = map[Status]map[Status][]Actor{
	StatusScheduled: {
		StatusConfirmed: providerOnly,
		StatusCancelled: bothParties,
		StatusNoShow:    providerOnly,
	},
	StatusConfirmed: {
		StatusInProgress: providerOnly,
		StatusCancelled:  bothParties,
		StatusNoShow:     providerOnly,
	},
	StatusInProgress: {
		StatusCompleted: providerOnly,
		StatusNoShow:    providerOnly,
	},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// AllowedNext lists the states reachable from `from` in one step.
func AllowedNext(from Status) []Status {
	var next []Status
	for _, candidate := range []Status{StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow} {
		if CanTransition(from, candidate) {
			next = append(next, candidate)
		}
	}
	return next
}

// CheckTransition validates from -> to for actor. Illegal edges yield a
// *TransitionError; a legal edge requested by the wrong party yields ErrActorNotPermitted.
func CheckTransition(from, to Status, actor Actor) error {
	actors, ok := transitions[from][to]
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	for _, allowed := range actors {
		if allowed == actor {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not move %s -> %s", ErrActorNotPermitted, actor, from, to)
}
