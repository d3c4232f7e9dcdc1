package appstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

func TestTokenIssuer_Claims(t *testing.T) {
	key := newP256Key(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(models.Credentials{
		IssuerID:   "issuer-1",
		KeyID:      "KEY123",
		PrivateKey: base64.StdEncoding.EncodeToString([]byte(pkcs8PEM(t, key))),
		BundleID:   "com.example.holly",
	}, func() time.Time { return now })

	token, err := issuer.Issue()
	require.NoError(t, err)
	assert.Equal(t, now, token.IssuedAt)
	assert.Equal(t, now.Add(300*time.Second), token.ExpiresAt)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token.Value, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithAudience(Audience))
	require.NoError(t, err)

	assert.Equal(t, "ES256", parsed.Header["alg"])
	assert.Equal(t, "KEY123", parsed.Header["kid"])
	assert.Equal(t, "issuer-1", claims["iss"])
	assert.Equal(t, "appstoreconnect-v1", claims["aud"])
	assert.Equal(t, "com.example.holly", claims["bid"])
	assert.EqualValues(t, now.Unix(), claims["iat"])
	assert.EqualValues(t, now.Unix()+300, claims["exp"])
}

func TestTokenIssuer_FreshTokenPerCall(t *testing.T) {
	key := newP256Key(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(models.Credentials{
		IssuerID:   "i",
		KeyID:      "k",
		PrivateKey: pkcs8PEM(t, key),
	}, func() time.Time { return clock })

	first, err := issuer.Issue()
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	second, err := issuer.Issue()
	require.NoError(t, err)

	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, first.IssuedAt.Add(time.Minute), second.IssuedAt)
}

func TestTokenIssuer_MalformedKey(t *testing.T) {
	tests := []struct {
		name     string
		material string
	}{
		{"empty", ""},
		{"not base64", "%%%not-a-key%%%"},
		{"base64 of garbage", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"wrong curve", func() string {
			key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
			require.NoError(t, err)
			der, err := x509.MarshalECPrivateKey(key)
			require.NoError(t, err)
			return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := NewTokenIssuer(models.Credentials{IssuerID: "i", KeyID: "k", PrivateKey: tt.material}, nil)
			_, err := issuer.Issue()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSigning)
		})
	}
}

func TestParsePrivateKey_SEC1(t *testing.T) {
	key := newP256Key(t)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	material := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	parsed, err := ParsePrivateKey(material)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(key))
}
