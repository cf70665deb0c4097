package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefreshTestMode(t *testing.T) {
	t.Setenv("ATLAS_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("ATLAS_TEST_MODE", "0")
	require.True(t, InTestMode(), "cached flag holds until refreshed")

	RefreshTestMode()
	require.False(t, InTestMode())
}
