package services

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/config"
	"github.com/KazimAndrei/HollyProject/internal/interfaces"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
	"github.com/KazimAndrei/HollyProject/internal/services/mock"
	"github.com/KazimAndrei/HollyProject/internal/services/real"
)

// Services bundles the outbound collaborators chosen from configuration.
type Services struct {
	Issuer     interfaces.TokenIssuer
	AppStore   interfaces.AppStoreAPI
	Decoder    *appstore.Decoder
	Generator  interfaces.Generator
	Mode       api.AppStoreMode
	LLMEnabled bool
}

// CreateServices creates the appropriate service implementations based on configuration.
// Incomplete App Store credentials select the mock backend; a missing LLM key selects the offline generator.
func CreateServices(cfg *config.ParsedConfig, logger zerolog.Logger, m *metrics.Metrics) (*Services, error) {
	s := &Services{LLMEnabled: cfg.LLMEnabled()}

	if cfg.MockMode() {
		logger.Warn().Msg("App Store credentials incomplete, subscription verification runs in mock mode")
		s.Issuer = mock.NewMockTokenIssuer()
		s.AppStore = mock.NewMockAppStore(nil, logger)
		s.Decoder = appstore.NewDecoder(nil)
		s.Mode = api.AppStoreModeMock
	} else {
		issuer := appstore.NewTokenIssuer(cfg.Credentials(), nil)
		if _, err := issuer.Issue(); err != nil {
			logger.Error().Err(err).Msg("App Store key unusable, every verification will be inconclusive")
		}
		s.Issuer = issuer
		s.AppStore = real.NewAppStoreClient(real.AppStoreClientConfig{
			BaseURL:     cfg.AppStore.BaseURL,
			Environment: cfg.AppStore.Environment,
			Timeout:     cfg.AppStoreTimeout,
			MaxRetries:  cfg.AppStore.MaxRetries,
			Backoff:     cfg.AppStoreBackoff,
		}, issuer, logger, m)
		s.Mode = api.AppStoreModeLive

		var verifier *appstore.ChainVerifier
		if cfg.AppStore.VerifySignatures {
			var err error
			verifier, err = appstore.LoadChainVerifier(cfg.AppStore.RootCertPath, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to load App Store root certificates: %w", err)
			}
		}
		s.Decoder = appstore.NewDecoder(verifier)
	}

	if s.LLMEnabled {
		s.Generator = real.NewOpenAIGenerator(real.GeneratorConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Timeout:     cfg.LLMTimeout,
			Temperature: cfg.LLM.Temperature,
		}, logger)
	} else {
		logger.Warn().Msg("No LLM key configured, answers come from the offline generator")
		s.Generator = mock.NewOfflineGenerator()
	}

	return s, nil
}
