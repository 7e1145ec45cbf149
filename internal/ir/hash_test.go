package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEncoding(t *testing.T) {
	a, err := KeyEncoding("users", IRArray{IRInt(1)})
	require.NoError(t, err)
	b, err := KeyEncoding("users", IRArray{IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := KeyEncoding("orders", IRArray{IRInt(1)})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = KeyEncoding("users", IRArray{IRNull{}})
	require.Error(t, err)
	_, err = KeyEncoding("users", IRArray{IRArray{IRInt(1)}})
	require.Error(t, err)
}

func TestKeyEncoding_ByteExact(t *testing.T) {
	distinct := [][2]IRArray{
		{{IRString("caf\u00e9")}, {IRString("cafe\u0301")}},
		{{IRString("\xff")}, {IRString("\xfe")}},
		{{IRString("1")}, {IRInt(1)}},
		{{IRBool(true)}, {IRInt(1)}},
		{{IRString("ab"), IRString("c")}, {IRString("a"), IRString("bc")}},
		{{IRString("a\x00b")}, {IRString("a")}},
	}
	for _, pair := range distinct {
		a, err := KeyEncoding("t", pair[0])
		require.NoError(t, err)
		b, err := KeyEncoding("t", pair[1])
		require.NoError(t, err)
		assert.NotEqual(t, a, b, "%v vs %v", pair[0], pair[1])
	}
}

func TestHashWithDomain(t *testing.T) {
	data := []byte("payload")
	assert.Equal(t, HashWithDomain(DomainKey, data), HashWithDomain(DomainKey, data))
	assert.NotEqual(t, HashWithDomain(DomainKey, data), HashWithDomain("relq/other/v1", data))
}
