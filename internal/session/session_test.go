package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewToken_IsNotAllZeroAndVariesPerCall(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	require.NotEqual(t, Token{}, a)
	require.NotEqual(t, a, b)
}

func TestTable_PutValidateDrop(t *testing.T) {
	table := NewTable()
	tok, err := NewToken()
	require.NoError(t, err)

	require.False(t, table.Validate(1, tok))

	table.Put(1, tok)
	require.True(t, table.Validate(1, tok))

	other, err := NewToken()
	require.NoError(t, err)
	require.False(t, table.Validate(1, other))

	table.Drop(1)
	require.False(t, table.Validate(1, tok))
}

func TestTable_SecondLoginInvalidatesFirstSession(t *testing.T) {
	table := NewTable()
	first, err := NewToken()
	require.NoError(t, err)
	second, err := NewToken()
	require.NoError(t, err)

	table.Put(1, first)
	table.Put(1, second)

	require.False(t, table.Validate(1, first))
	require.True(t, table.Validate(1, second))
}
