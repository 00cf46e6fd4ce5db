package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.test"

// fakeKeySource hands out a fixed key set and counts fetches.
type fakeKeySource struct {
	keys    map[string]*rsa.PublicKey
	fetches int
	err     error
}

func (f *fakeKeySource) FetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.keys, nil
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":      testIssuer,
		"sub":      "user-abc",
		"username": "alice",
		"email":    "alice@example.com",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func TestResolveValidToken(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	identity, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-abc", identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, 1, source.fetches)
}

func TestResolveCachesKeys(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", validClaims()))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, source.fetches, "keys should be fetched once within the ttl")
}

func TestResolveExpiredToken(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveWrongIssuer(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	claims := validClaims()
	claims["iss"] = "https://somebody-else.test"

	_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveMissingSubject(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	claims := validClaims()
	delete(claims, "sub")

	_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveWrongSigningKey(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &other.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveUnknownKidForcesRefresh(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, 0)

	// Warm the cache.
	_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", validClaims()))
	require.NoError(t, err)
	require.Equal(t, 1, source.fetches)

	// An unknown kid triggers another fetch before giving up.
	_, err = resolver.Resolve(context.Background(), signToken(t, key, "ghost", validClaims()))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 2, source.fetches)
}

func TestResolveUnknownKidRefreshRateLimited(t *testing.T) {
	key := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, time.Minute)

	_, err := resolver.Resolve(context.Background(), signToken(t, key, "k1", validClaims()))
	require.NoError(t, err)
	require.Equal(t, 1, source.fetches)

	// Inside the gap an unknown kid fails fast without hitting the source.
	_, err = resolver.Resolve(context.Background(), signToken(t, key, "ghost", validClaims()))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 1, source.fetches)
}

func TestResolveKeyRotation(t *testing.T) {
	oldKey := newTestKey(t)
	newKey := newTestKey(t)
	source := &fakeKeySource{keys: map[string]*rsa.PublicKey{"k1": &oldKey.PublicKey}}
	resolver := NewResolverWithKeySource(testIssuer, source, 24*time.Hour, 0)

	_, err := resolver.Resolve(context.Background(), signToken(t, oldKey, "k1", validClaims()))
	require.NoError(t, err)

	// Rotate: the next token carries a fresh kid and the source serves it.
	source.keys = map[string]*rsa.PublicKey{"k2": &newKey.PublicKey}

	identity, err := resolver.Resolve(context.Background(), signToken(t, newKey, "k2", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-abc", identity.UserID)
}
