package storekit

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixture is one transaction served by the stand-in.
type Fixture struct {
	TransactionID         string `yaml:"transaction_id"`
	OriginalTransactionID string `yaml:"original_transaction_id"`
	ProductID             string `yaml:"product_id"`
	// ExpiresIn is relative to the time of each request; negative values are already expired.
	ExpiresIn string `yaml:"expires_in"`
	Trial     bool   `yaml:"trial"`

	expiresIn time.Duration
}

// Fixtures is the stand-in's YAML document.
type Fixtures struct {
	BundleID     string    `yaml:"bundle_id"`
	Environment  string    `yaml:"environment"`
	Transactions []Fixture `yaml:"transactions"`
	// Failures maps a request path to status codes returned, in order, before normal service resumes.
	Failures map[string][]int `yaml:"failures"`
}

// LoadFixtures reads and validates a fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %v", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes a fixture document.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %v", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func (fx *Fixtures) validate() error {
	if fx.BundleID == "" {
		fx.BundleID = "com.holly.app"
	}
	if fx.Environment == "" {
		fx.Environment = "Sandbox"
	}

	seen := make(map[string]struct{}, len(fx.Transactions))
	for i := range fx.Transactions {
		t := &fx.Transactions[i]
		t.TransactionID = strings.TrimSpace(t.TransactionID)
		t.OriginalTransactionID = strings.TrimSpace(t.OriginalTransactionID)
		if t.TransactionID == "" {
			return fmt.Errorf("transactions[%d]: transaction_id is required", i)
		}
		if _, dup := seen[t.TransactionID]; dup {
			return fmt.Errorf("transactions[%d]: duplicate transaction_id %s", i, t.TransactionID)
		}
		seen[t.TransactionID] = struct{}{}
		if t.OriginalTransactionID == "" {
			t.OriginalTransactionID = t.TransactionID
		}

		d, err := time.ParseDuration(strings.TrimSpace(t.ExpiresIn))
		if err != nil {
			return fmt.Errorf("transactions[%d]: invalid expires_in %q: %v", i, t.ExpiresIn, err)
		}
		t.expiresIn = d
	}

	for path, codes := range fx.Failures {
		for _, code := range codes {
			if code < 400 || code > 599 {
				return fmt.Errorf("failures[%s]: %d is not an error status", path, code)
			}
		}
	}
	return nil
}
