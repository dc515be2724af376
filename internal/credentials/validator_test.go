package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) Lookup(username string) (string, bool, error) {
	if len(m) == 0 {
		return "", false, ErrUnavailable
	}
	p, ok := m[username]
	return p, ok, nil
}

type failingSource struct {
	err error
}

func (f failingSource) Lookup(string) (string, bool, error) {
	return "", false, f.err
}

func TestValidatorScenario(t *testing.T) {
	store := NewStore(writeCredentials(t, "alice,wonderland\nbob,builder"), nil)
	_, err := store.Load()
	require.NoError(t, err)
	v := NewValidator(store)

	tests := []struct {
		username string
		password string
		want     Outcome
	}{
		{"alice", "wonderland", OutcomeAccepted},
		{"bob", "builder", OutcomeAccepted},
		{"alice", "wrong", OutcomeRejected},
		{"alice", "", OutcomeRejected},
		{"alice", "Wonderland", OutcomeRejected},
		{"carol", "x", OutcomeRejected},
		{"carol", "wonderland", OutcomeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.username+"/"+tt.password, func(t *testing.T) {
			got, err := v.Validate(tt.username, tt.password)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidateAllLoadedPairs(t *testing.T) {
	src := mapSource{"alice": "wonderland", "bob": "builder", "dave": "pa,ss", "eve": ""}
	for user, pass := range src {
		ok, err := Validate(src, user, pass)
		require.NoError(t, err)
		require.Truef(t, ok, "expected %s to validate", user)

		ok, err = Validate(src, user, pass+"x")
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestValidateDuplicateLastWins(t *testing.T) {
	store := NewStore(writeCredentials(t, "a,1\na,2\n"), nil)
	_, err := store.Load()
	require.NoError(t, err)

	ok, err := Validate(store, "a", "1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Validate(store, "a", "2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateUnavailable(t *testing.T) {
	store := NewStore(writeCredentials(t, ""), nil)
	_, err := store.Load()
	require.NoError(t, err)

	outcome, err := NewValidator(store).Validate("alice", "wonderland")
	require.Equal(t, OutcomeUnavailable, outcome)
	require.ErrorIs(t, err, ErrUnavailable)

	ok, err := Validate(store, "alice", "wonderland")
	require.False(t, ok)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestValidateFault(t *testing.T) {
	boom := errors.New("corrupt state")
	outcome, err := NewValidator(failingSource{err: boom}).Validate("alice", "x")
	require.Equal(t, OutcomeFault, outcome)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrUnavailable)
}

func TestValidatorExists(t *testing.T) {
	v := NewValidator(mapSource{"alice": "wonderland"})

	ok, err := v.Exists("alice")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.Exists("carol")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = NewValidator(mapSource{}).Exists("alice")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "accepted", OutcomeAccepted.String())
	require.Equal(t, "rejected", OutcomeRejected.String())
	require.Equal(t, "unavailable", OutcomeUnavailable.String())
	require.Equal(t, "fault", OutcomeFault.String())
	require.Equal(t, "outcome(42)", Outcome(42).String())
}
