package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreKeepsCurrentOnRejectedLoad(t *testing.T) {
	st := NewStore(DefaultHistory)
	first, err := st.Load("ATGC", Options{ID: "one"})
	require.NoError(t, err)

	_, err = st.Load("AT?C", Options{ID: "two"})
	require.Error(t, err)
	assert.Same(t, first, st.Current())
	assert.Empty(t, st.History())
}

func TestStoreHistoryAndRecall(t *testing.T) {
	st := NewStore(2)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := st.Load("ACGT", Options{ID: id})
		require.NoError(t, err)
	}
	assert.Equal(t, "d", st.Current().ID())
	hist := st.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[0].ID())
	assert.Equal(t, "b", hist[1].ID())

	seq, ok := st.Recall("b")
	require.True(t, ok)
	assert.Equal(t, "b", seq.ID())
	assert.Equal(t, "b", st.Current().ID())
	hist = st.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "d", hist[0].ID())
	assert.Equal(t, "c", hist[1].ID())

	_, ok = st.Recall("a")
	assert.False(t, ok)
}
