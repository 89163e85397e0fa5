package korbitapi

import (
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedJWT_CarriesAccessKeyAndNonce(t *testing.T) {
	creds := Credentials{AccessKey: "ak", SecretKey: "sk"}
	tok, err := signedJWT(creds, nil)
	require.NoError(t, err)

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (any, error) { return []byte("sk"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "ak", claims["access_key"])
	assert.NotEmpty(t, claims["nonce"])
	assert.Contains(t, claims, "timestamp_ms")
	assert.NotContains(t, claims, "query_hash")
}

func TestSignedJWT_IncludesQueryHashWhenQueryPresent(t *testing.T) {
	creds := Credentials{AccessKey: "ak", SecretKey: "sk"}
	q := url.Values{"market": {"KRW-BTC"}}
	tok, err := signedJWT(creds, q)
	require.NoError(t, err)

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (any, error) { return []byte("sk"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "SHA512", claims["query_hash_alg"])
	assert.Equal(t, queryHash(q), claims["query_hash"])
}

func TestQueryHash_SortsKeysDeterministically(t *testing.T) {
	a := url.Values{"b": {"2"}, "a": {"1"}}
	b := url.Values{"a": {"1"}, "b": {"2"}}
	assert.Equal(t, queryHash(a), queryHash(b))
}

func TestQueryHash_DiffersOnValueChange(t *testing.T) {
	a := url.Values{"market": {"KRW-BTC"}}
	b := url.Values{"market": {"KRW-ETH"}}
	assert.NotEqual(t, queryHash(a), queryHash(b))
}
