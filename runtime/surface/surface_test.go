package surface

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyKeepsIntroductionOrder(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Apply(
		Component{ID: "a", Kind: "Text"},
		Component{ID: "b", Kind: "Checkbox"},
		Component{ID: "c", Kind: "BarChart"},
	))

	// Replacing "a" must keep its original position.
	require.NoError(t, s.Apply(Component{ID: "a", Kind: "Text", Props: map[string]any{"text": "hi"}}))

	got := s.Components()
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.Equal(t, "hi", got[0].Props["text"])
}

func TestApplyRejectsInvalidComponents(t *testing.T) {
	s := New("s1")
	require.Error(t, s.Apply(Component{Kind: "Text"}))
	require.Error(t, s.Apply(Component{ID: "a"}))
	// A rejected batch must not be partially applied.
	require.Error(t, s.Apply(Component{ID: "a", Kind: "Text"}, Component{ID: "b"}))
	require.Equal(t, 0, s.Len())
}

func TestSetRootRequiresKnownComponent(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Apply(Component{ID: "a", Kind: "Text"}))

	err := s.SetRoot("missing")
	require.ErrorIs(t, err, ErrUnknownRoot)
	require.Empty(t, s.Root())

	require.NoError(t, s.SetRoot("a"))
	require.Equal(t, "a", s.Root())
}

func TestDeletedSurfaceRejectsMutation(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Apply(Component{ID: "a", Kind: "Text"}))
	s.Delete()
	require.True(t, s.Deleted())
	require.ErrorIs(t, s.Apply(Component{ID: "b", Kind: "Text"}), ErrDeleted)
	require.ErrorIs(t, s.SetRoot("a"), ErrDeleted)
}

func TestPathRefRoundTrip(t *testing.T) {
	ref := PathRef("/forms/f1/option0")
	path, ok := RefPath(ref)
	require.True(t, ok)
	require.Equal(t, "/forms/f1/option0", path)

	_, ok = RefPath("not a ref")
	require.False(t, ok)
	_, ok = RefPath(map[string]any{"path": "/x", "extra": true})
	require.False(t, ok)
}
