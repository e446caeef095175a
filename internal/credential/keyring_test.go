package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := Tokens{Ring: keyring.NewArrayKeyring(nil)}

	_, err := tokens.Get("http://127.0.0.1:8080")
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, tokens.Set("http://127.0.0.1:8080/", "abc"))
	got, err := tokens.Get("http://127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, "abc", got)

	_, err = tokens.Get("http://other:8080")
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, tokens.Delete("http://127.0.0.1:8080"))
	require.NoError(t, tokens.Delete("http://127.0.0.1:8080"))
	_, err = tokens.Get("http://127.0.0.1:8080")
	require.ErrorIs(t, err, ErrNoToken)
}
