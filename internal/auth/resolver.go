package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers signature, issuer and expiry failures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrKeyNotFound is returned when the token's signing key id is
	// unknown even after a forced key set refresh.
	ErrKeyNotFound = errors.New("signing key not found")
)

// Identity is the verified result of resolving a bearer credential.
// UserID is the token subject: the identity provider's stable user id.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// Resolver verifies RS256 bearer tokens against the issuer's JWKS endpoint.
// Keys are cached with a bounded TTL; a refresh forced by an unknown key id
// is rate limited so invalid-kid churn cannot hammer the key endpoint.
type Resolver struct {
	issuer  string
	keys    KeySource
	ttl     time.Duration
	minGap  time.Duration
	timeout time.Duration

	mu          sync.Mutex
	cached      map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

// KeySource fetches the current signing key set.
type KeySource interface {
	FetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error)
}

// NewResolver builds a Resolver for the issuer, reading keys from
// <issuer>/.well-known/jwks.json.
func NewResolver(issuer string) *Resolver {
	return &Resolver{
		issuer:  issuer,
		keys:    newJWKSFetcher(issuer),
		ttl:     24 * time.Hour,
		minGap:  time.Minute,
		timeout: 5 * time.Second,
	}
}

// NewResolverWithKeySource is used by tests to substitute the key source.
func NewResolverWithKeySource(issuer string, keys KeySource, ttl, minGap time.Duration) *Resolver {
	return &Resolver{issuer: issuer, keys: keys, ttl: ttl, minGap: minGap, timeout: 5 * time.Second}
}

// Resolve verifies the token and returns the identity of its subject.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid header", ErrInvalidToken)
		}
		return r.signingKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(r.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Identity{}, ErrKeyNotFound
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	identity := Identity{UserID: sub}
	if username, ok := claims["username"].(string); ok {
		identity.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}

// signingKey returns the cached key for kid, refreshing the key set when the
// cache is stale or the kid is unknown. Forced refreshes are rate limited.
func (r *Resolver) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.fetchedAt) > r.ttl {
		if err := r.refreshLocked(ctx); err != nil && r.cached == nil {
			return nil, err
		}
	}
	if key, ok := r.cached[kid]; ok {
		return key, nil
	}

	// Unknown kid: force one refresh unless one was attempted recently.
	if time.Since(r.lastAttempt) >= r.minGap {
		if err := r.refreshLocked(ctx); err != nil {
			return nil, err
		}
		if key, ok := r.cached[kid]; ok {
			return key, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (r *Resolver) refreshLocked(ctx context.Context) error {
	r.lastAttempt = time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys, err := r.keys.FetchKeys(fetchCtx)
	if err != nil {
		log.Printf("jwks refresh failed: %v", err)
		return fmt.Errorf("fetch signing keys: %w", err)
	}
	r.cached = keys
	r.fetchedAt = time.Now()
	return nil
}
