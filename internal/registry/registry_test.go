package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

func TestLookupCaseInsensitive(t *testing.T) {
	t.Parallel()
	e, ok := Lookup("  LinkedIn ")
	require.True(t, ok)
	assert.Equal(t, "linkedin", e.SourceID)
	assert.NotEmpty(t, e.Reason)
	assert.NotEmpty(t, e.Alternative)
}

func TestIsDisabled(t *testing.T) {
	t.Parallel()
	assert.True(t, IsDisabled("indeed"))
	assert.False(t, IsDisabled("rss"))
	assert.False(t, IsDisabled(""))
}

func TestGuardRefusesDisabledSource(t *testing.T) {
	t.Parallel()
	err := Guard("glassdoor")
	require.ErrorIs(t, err, domain.ErrSourceDisabled)

	require.NoError(t, Guard("government"))
}

func TestAllReturnsCopy(t *testing.T) {
	t.Parallel()
	a := All()
	require.NotEmpty(t, a)
	a[0].SourceID = "mutated"
	b := All()
	assert.NotEqual(t, "mutated", b[0].SourceID)
}
