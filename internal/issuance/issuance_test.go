package issuance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

func TestMint(t *testing.T) {
	first, err := Mint()
	require.NoError(t, err)
	second, err := Mint()
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret, "secrets must be unique")
	assert.NotEqual(t, first.Commitment, second.Commitment)

	// Minted commitments satisfy the registration parser.
	_, err = id.ParseCommitment(first.Commitment.String())
	require.NoError(t, err)
}

func TestDerive(t *testing.T) {
	material, err := Mint()
	require.NoError(t, err)

	t.Run("recomputes minted commitment", func(t *testing.T) {
		derived, err := Derive(material.Secret)
		require.NoError(t, err)
		assert.Equal(t, material.Commitment, derived)
	})

	t.Run("rejects short secret", func(t *testing.T) {
		_, err := Derive("deadbeef")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-hex secret", func(t *testing.T) {
		_, err := Derive("zz" + material.Secret[2:])
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
