package appstore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUntrustedChain is returned when the x5c chain does not lead to a configured root.
var ErrUntrustedChain = errors.New("appstore: untrusted certificate chain")

// ChainVerifier checks the ES256 signature of a signed blob against the leaf
// certificate carried in its x5c header, and the chain against trusted roots.
type ChainVerifier struct {
	roots *x509.CertPool
	now   func() time.Time
}

// NewChainVerifier builds a verifier trusting the given root certificates.
// Each entry may be PEM (one or more blocks) or a single DER certificate.
func NewChainVerifier(now func() time.Time, rootCerts ...[]byte) (*ChainVerifier, error) {
	if now == nil {
		now = time.Now
	}

	pool := x509.NewCertPool()
	count := 0
	for _, data := range rootCerts {
		certs, err := parseCertificates(data)
		if err != nil {
			return nil, err
		}
		for _, cert := range certs {
			pool.AddCert(cert)
			count++
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("appstore: no root certificates provided")
	}

	return &ChainVerifier{roots: pool, now: now}, nil
}

// LoadChainVerifier reads root certificates from path.
func LoadChainVerifier(path string, now func() time.Time) (*ChainVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("appstore: read root certificate: %w", err)
	}
	return NewChainVerifier(now, data)
}

// Verify returns nil when the blob's signature and certificate chain check out.
func (v *ChainVerifier) Verify(blob string) error {
	_, err := jwt.Parse(blob, v.leafKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return err
}

func (v *ChainVerifier) leafKey(token *jwt.Token) (any, error) {
	raw, ok := token.Header["x5c"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing x5c header", ErrUntrustedChain)
	}

	certs := make([]*x509.Certificate, 0, len(raw))
	for i, entry := range raw {
		encoded, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%w: x5c[%d] is not a string", ErrUntrustedChain, i)
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: x5c[%d]: %v", ErrUntrustedChain, i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: x5c[%d]: %v", ErrUntrustedChain, i, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	leaf := certs[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedChain, err)
	}

	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: leaf key is not ECDSA", ErrUntrustedChain)
	}
	return pub, nil
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("appstore: parse root certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) > 0 {
		return certs, nil
	}

	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("appstore: parse root certificate: %w", err)
	}
	return []*x509.Certificate{cert}, nil
}
