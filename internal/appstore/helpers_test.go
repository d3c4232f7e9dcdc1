package appstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/KazimAndrei/HollyProject/internal/api"
)

// unsignedBlob builds "header.payload.sig" with an unpadded payload segment.
func unsignedBlob(t *testing.T, payload any) string {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(data) + ".sig"
}

func txPayload(originalID string, expires time.Time, trial bool) map[string]any {
	return map[string]any{
		"originalTransactionId": originalID,
		"transactionId":         originalID + "-t",
		"expiresDate":           expires.UnixMilli(),
		"isInTrialPeriod":       trial,
	}
}

func newP256Key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func pkcs8PEM(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

type testChain struct {
	rootPEM []byte
	rootDER []byte
	leafKey *ecdsa.PrivateKey
	leafDER []byte
}

func newTestChain(t *testing.T, notBefore, notAfter time.Time) testChain {
	t.Helper()
	rootKey := newP256Key(t)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	leafKey := newP256Key(t)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Leaf"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	require.NoError(t, err)

	return testChain{
		rootPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER}),
		rootDER: rootDER,
		leafKey: leafKey,
		leafDER: leafDER,
	}
}

func (c testChain) sign(t *testing.T, payload map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(payload))
	token.Header["x5c"] = []string{base64.StdEncoding.EncodeToString(c.leafDER)}
	signed, err := token.SignedString(c.leafKey)
	require.NoError(t, err)
	return signed
}

// fakeAPI records calls and replays canned responses.
type fakeAPI struct {
	statuses     map[string]*api.SubscriptionStatusResponse
	transactions map[string]*api.TransactionInfoResponse
	statusErr    error
	txErr        error

	statusCalls []string
	txCalls     []string
}

func (f *fakeAPI) GetSubscriptionStatuses(ctx context.Context, id string) (*api.SubscriptionStatusResponse, error) {
	f.statusCalls = append(f.statusCalls, id)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.statuses[id], nil
}

func (f *fakeAPI) GetTransactionInfo(ctx context.Context, id string) (*api.TransactionInfoResponse, error) {
	f.txCalls = append(f.txCalls, id)
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.transactions[id], nil
}
