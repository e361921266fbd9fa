package appointments

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}

func TestCheckTransition_LegalEdges(t *testing.T) {
	tests := []struct {
		from  Status
		to    Status
		actor Actor
	}{
		{StatusScheduled, StatusConfirmed, ActorProvider},
		{StatusScheduled, StatusCancelled, ActorPatient},
		{StatusScheduled, StatusCancelled, ActorProvider},
		{StatusConfirmed, StatusInProgress, ActorProvider},
		{StatusConfirmed, StatusCancelled, ActorPatient},
		{StatusConfirmed, StatusCancelled, ActorProvider},
		{StatusInProgress, StatusCompleted, ActorProvider},
		{StatusScheduled, StatusNoShow, ActorProvider},
		{StatusConfirmed, StatusNoShow, ActorProvider},
		{StatusInProgress, StatusNoShow, ActorProvider},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to)+"/"+string(tt.actor), func(t *testing.T) {
			assert.NoError(t, CheckTransition(tt.from, tt.to, tt.actor))
		})
	}
}

func TestCheckTransition_RejectsEveryPairOutsideTable(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if CanTransition(from, to) {
				continue
			}
			for _, actor := range []Actor{ActorPatient, ActorProvider} {
				err := CheckTransition(from, to, actor)
				require.Error(t, err, "%s -> %s", from, to)
				assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s should be invalid_transition", from, to)

				var terr *TransitionError
				require.True(t, errors.As(err, &terr))
				assert.Equal(t, from, terr.From)
				assert.Equal(t, to, terr.To)
			}
		}
	}
}

func TestCheckTransition_NoSkipping(t *testing.T) {
	err := CheckTransition(StatusScheduled, StatusInProgress, ActorProvider)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "invalid_transition: scheduled -> in-progress")
}

func TestCheckTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.Empty(t, AllowedNext(from), "terminal %s should have no exits", from)
		assert.True(t, from.Terminal())
	}
}

func TestCheckTransition_ActorRestrictions(t *testing.T) {
	err := CheckTransition(StatusScheduled, StatusConfirmed, ActorPatient)
	assert.ErrorIs(t, err, ErrActorNotPermitted)
	assert.NotErrorIs(t, err, ErrInvalidTransition)

	err = CheckTransition(StatusInProgress, StatusCompleted, ActorPatient)
	assert.ErrorIs(t, err, ErrActorNotPermitted)

	err = CheckTransition(StatusConfirmed, StatusNoShow, Actor(""))
	assert.ErrorIs(t, err, ErrActorNotPermitted)
}

func TestAllowedNext(t *testing.T) {
	assert.Equal(t, []Status{StatusConfirmed, StatusCancelled, StatusNoShow}, AllowedNext(StatusScheduled))
	assert.Equal(t, []Status{StatusInProgress, StatusCancelled, StatusNoShow}, AllowedNext(StatusConfirmed))
	assert.Equal(t, []Status{StatusCompleted, StatusNoShow}, AllowedNext(StatusInProgress))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" In_Progress ")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("archived")
	assert.Error(t, err)
}
