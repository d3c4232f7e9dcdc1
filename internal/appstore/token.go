package appstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

const (
	// Audience is the fixed audience claim required by the App Store Server API.
	Audience = "appstoreconnect-v1"

	// TokenLifetime bounds how long an issued bearer token is accepted.
	TokenLifetime = 300 * time.Second
)

// TokenIssuer signs ES256 bearer tokens with an App Store Connect API key.
// A fresh token is minted on every call; nothing is cached.
type TokenIssuer struct {
	creds  models.Credentials
	key    *ecdsa.PrivateKey
	keyErr error
	now    func() time.Time
}

// NewTokenIssuer parses the key material once. A malformed key does not fail
// construction; every Issue call reports it instead.
func NewTokenIssuer(creds models.Credentials, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	key, err := ParsePrivateKey(creds.PrivateKey)
	return &TokenIssuer{
		creds:  creds,
		key:    key,
		keyErr: err,
		now:    now,
	}
}

// Issue returns a token valid for TokenLifetime from now.
func (t *TokenIssuer) Issue() (models.SignedToken, error) {
	if t.keyErr != nil {
		return models.SignedToken{}, t.keyErr
	}

	issuedAt := t.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(TokenLifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": t.creds.IssuerID,
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
		"aud": Audience,
		"bid": t.creds.BundleID,
	})
	token.Header["kid"] = t.creds.KeyID

	value, err := token.SignedString(t.key)
	if err != nil {
		return models.SignedToken{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return models.SignedToken{
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ParsePrivateKey accepts a PEM document, raw or base64-encoded, holding a
// P-256 key in PKCS#8 or SEC1 form.
func ParsePrivateKey(material string) (*ecdsa.PrivateKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, fmt.Errorf("%w: empty key material", ErrSigning)
	}

	pemBytes := []byte(material)
	if !strings.HasPrefix(material, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(material)
		if err != nil {
			return nil, fmt.Errorf("%w: key is neither PEM nor base64: %v", ErrSigning, err)
		}
		pemBytes = decoded
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: key curve %s, want P-256", ErrSigning, key.Curve.Params().Name)
	}
	return key, nil
}

var (
	// ErrSigning reports malformed key material or a signing failure.
	ErrSigning = errors.New("appstore: signing failed")

	// ErrInconclusive marks any API failure: exhausted retries, terminal status, bad body.
	ErrInconclusive = errors.New("appstore: verification inconclusive")

	// ErrNoValidTransaction is returned by Evaluate when no record carries an expiry.
	ErrNoValidTransaction = errors.New("appstore: could not find valid transaction")
)
