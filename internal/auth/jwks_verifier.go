package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	defaultJWKSCacheTTL = 10 * time.Minute
	// minJWKSRefetchInterval bounds how often an unknown kid can force a fetch.
	minJWKSRefetchInterval = 30 * time.Second
	maxJWKSDocumentBytes   = 1 << 20
)

// jwksAlgorithms lists the signing algorithms a published key may carry.
var jwksAlgorithms = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodES384.Alg(),
}

var (
	errMissingToken          = errors.New("token must not be empty")
	errMissingKeyIdentifier  = errors.New("token missing key identifier")
	errKeyNotFound           = errors.New("signing key not found in JWKS")
	errAlgorithmMismatch     = errors.New("token algorithm does not match signing key")
	errEmptyKeySet           = errors.New("jwks document contained no usable keys")
	errMissingSubject        = errors.New("token missing subject claim")
	errMissingJWKSURL        = errors.New("jwks url configuration required")
	errMissingIssuerConfig   = errors.New("issuer configuration required")
	ErrInvalidVerifierConfig = errors.New("auth: invalid jwks verifier config")
)

// JWKSVerifierConfig bundles configuration required to instantiate a JWKSVerifier.
type JWKSVerifierConfig struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Logger     *zap.Logger
	Clock      func() time.Time
}

// JWKSVerifier verifies RS256, ES256 and ES384 identity provider tokens against a
// periodically fetched JSON Web Key Set.
type JWKSVerifier struct {
	jwksURL    string
	issuer     string
	audience   string
	logger     *zap.Logger
	httpClient *http.Client
	clock      func() time.Time
	cacheTTL   time.Duration

	keyring   atomic.Pointer[jwksSnapshot]
	refreshMu sync.Mutex
}

// jwksSnapshot holds the keys of one fetch and is never mutated once stored.
type jwksSnapshot struct {
	keys      map[string]verificationKey
	fetchedAt time.Time
	expiresAt time.Time
}

// NewJWKSVerifier constructs a verifier with validated configuration.
func NewJWKSVerifier(cfg JWKSVerifierConfig) (*JWKSVerifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingJWKSURL)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingIssuerConfig)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultJWKSCacheTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &JWKSVerifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   strings.TrimSpace(cfg.Audience),
		logger:     logger,
		httpClient: httpClient,
		clock:      clock,
		cacheTTL:   cacheTTL,
	}, nil
}

// Verify validates the provided token and returns its claims.
func (v *JWKSVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Claims{}, errMissingToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods(jwksAlgorithms),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.clock),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		rawToken,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			keyID, _ := token.Header["kid"].(string)
			if keyID == "" {
				return nil, errMissingKeyIdentifier
			}
			key, err := v.resolveKey(ctx, keyID)
			if err != nil {
				return nil, err
			}
			if key.algorithm != token.Method.Alg() {
				return nil, fmt.Errorf("%w: kid %q is %s, token is %s", errAlgorithmMismatch, keyID, key.algorithm, token.Method.Alg())
			}
			return key.public, nil
		},
		options...,
	)
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("token signature invalid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, errMissingSubject
	}
	return *claims, nil
}

// resolveKey returns the key for keyID, fetching the key set when the snapshot is
// stale or lacks the kid. Concurrent misses share one fetch.
func (v *JWKSVerifier) resolveKey(ctx context.Context, keyID string) (verificationKey, error) {
	now := v.clock()
	if key, ok := v.currentKey(keyID, now); ok {
		return key, nil
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	current := v.keyring.Load()
	if current != nil && now.Before(current.expiresAt) {
		if key, ok := current.keys[keyID]; ok {
			return key, nil
		}
		if now.Sub(current.fetchedAt) < minJWKSRefetchInterval {
			return verificationKey{}, errKeyNotFound
		}
	}

	keys, err := v.fetchKeys(ctx)
	if err != nil {
		return verificationKey{}, err
	}
	v.keyring.Store(&jwksSnapshot{keys: keys, fetchedAt: now, expiresAt: now.Add(v.cacheTTL)})

	key, ok := keys[keyID]
	if !ok {
		return verificationKey{}, errKeyNotFound
	}
	return key, nil
}

func (v *JWKSVerifier) currentKey(keyID string, now time.Time) (verificationKey, bool) {
	current := v.keyring.Load()
	if current == nil || !now.Before(current.expiresAt) {
		return verificationKey{}, false
	}
	key, ok := current.keys[keyID]
	return key, ok
}

func (v *JWKSVerifier) fetchKeys(ctx context.Context) (map[string]verificationKey, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := v.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", response.StatusCode)
	}

	var set jsonWebKeySet
	if err := json.NewDecoder(io.LimitReader(response.Body, maxJWKSDocumentBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]verificationKey, len(set.Keys))
	for _, published := range set.Keys {
		key, err := published.verificationKey()
		if err != nil {
			v.logger.Debug("jwk ignored", zap.String("kid", published.KeyID), zap.String("kty", published.KeyType), zap.Error(err))
			continue
		}
		keys[published.KeyID] = key
	}
	if len(keys) == 0 {
		return nil, errEmptyKeySet
	}
	return keys, nil
}
