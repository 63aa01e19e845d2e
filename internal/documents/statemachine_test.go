package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{StateInitiated, EventFinalize, StateFinalized},
		{StateInitiated, EventDefer, StateToDeliver},
		{StateToDeliver, EventDeliver, StateFinalized},
		{StateToDeliver, EventCancel, StateCanceled},
		{StateFinalized, EventCancel, StateCanceled},
	}
	for _, c := range cases {
		got, err := Transition(c.from, c.ev)
		require.NoError(t, err, "%s on %s", c.ev, c.from)
		require.Equal(t, c.want, got)
	}
}

func TestTransitionRejectsAnythingOffTable(t *testing.T) {
	illegal := []struct {
		from State
		ev   Event
	}{
		{StateInitiated, EventCancel},
		{StateInitiated, EventDeliver},
		{StateToDeliver, EventFinalize},
		{StateFinalized, EventFinalize},
		{StateFinalized, EventDeliver},
		{StateCanceled, EventFinalize},
		{StateCanceled, EventCancel},
		{StateCanceled, EventDeliver},
	}
	for _, c := range illegal {
		_, err := Transition(c.from, c.ev)
		require.ErrorIs(t, err, ErrIllegalTransition, "%s on %s", c.ev, c.from)
	}
}

func TestCanCancel(t *testing.T) {
	require.True(t, CanCancel(StateToDeliver))
	require.True(t, CanCancel(StateFinalized))
	require.False(t, CanCancel(StateInitiated))
	require.False(t, CanCancel(StateCanceled))
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(StateCanceled))
	require.False(t, IsTerminal(StateInitiated))
	require.False(t, IsTerminal(StateToDeliver))
	require.False(t, IsTerminal(StateFinalized))
}

func TestNoteInitialState(t *testing.T) {
	got, err := NoteInitialState(StateFinalized)
	require.NoError(t, err)
	require.Equal(t, StateFinalized, got)

	_, err = NoteInitialState(StateToDeliver)
	require.ErrorIs(t, err, ErrParentNotCorrectable)

	_, err = NoteInitialState(StateInitiated)
	require.ErrorIs(t, err, ErrParentNotCorrectable)

	_, err = NoteInitialState(StateCanceled)
	require.ErrorIs(t, err, ErrParentNotCorrectable)
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "F001-42", FormatNumber("", "F001", 42, 0))
	require.Equal(t, "F001-00000042", FormatNumber("", "F001", 42, 8))
	require.Equal(t, "TF001-00000042", FormatNumber("T", "F001", 42, 8))
}
