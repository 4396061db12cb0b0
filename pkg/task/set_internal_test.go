package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetIntegrity(t *testing.T) {
	t.Parallel()
	set := NewSet(NewTask("Add", nil, WithUniq("A")))
	require.NoError(t, set.Assign("A", "H1"))

	// corrupt the handle map the way a buggy collaborator would
	set.handles["H2"] = "gone"

	_, err := set.Get("H2")
	require.ErrorIs(t, err, ErrIntegrity)
	require.NotErrorIs(t, err, ErrHandleNotFound)

	got, err := set.Get("H1")
	require.NoError(t, err)
	require.Equal(t, "A", got.Uniq())
}
